package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/leolab/lottery-engine/internal/lottery"
)

// LotteryHandler bundles the public draw endpoints.
type LotteryHandler struct {
	Svc *lottery.Service
}

func NewLotteryHandler(svc *lottery.Service) *LotteryHandler {
	return &LotteryHandler{Svc: svc}
}

// ----- DTOs -----

type drawReq struct {
	RequesterID string `json:"requesterId"`
	Nonce       string `json:"nonce"`
}

type nonceReq struct {
	RequesterID string `json:"requesterId"`
}

// Draw runs one complete draw for the requester.  The source IP is taken
// from the connection, not the body, so clients cannot spoof it past the
// proxy chain.
func (h *LotteryHandler) Draw(c echo.Context) error {
	var req drawReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	result, err := h.Svc.Draw(ctx, req.RequesterID, c.RealIP(), req.Nonce)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Verify checks a client-side draw claim against the ledger.
func (h *LotteryHandler) Verify(c echo.Context) error {
	publicID := c.Param("id")
	requesterID := c.QueryParam("requesterId")
	signature := c.QueryParam("signature")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Svc.VerifyDraw(ctx, publicID, requesterID, signature)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"drawId":    rec.DrawsID,
		"isWin":     rec.IsWin(),
		"prize_id":  rec.PrizeID,
		"type":      rec.Type,
		"createdAt": rec.CreatedAt,
	})
}

// Nonce issues a single-use draw token.
func (h *LotteryHandler) Nonce(c echo.Context) error {
	var req nonceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	nonce, err := h.Svc.GenerateNonce(ctx, req.RequesterID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"nonce": nonce})
}

// Stats returns the per-requester counters.
func (h *LotteryHandler) Stats(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	stats, err := h.Svc.RequesterStats(ctx, c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// errorResponse maps engine error codes onto HTTP statuses.  Anything
// that is not a typed engine error is an internal failure.
func errorResponse(c echo.Context, err error) error {
	if e, ok := lottery.AsError(err); ok {
		switch e.Code {
		case lottery.CodeInvalidRequester, lottery.CodeInvalidIP:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": e.Message})
		case lottery.CodeInvalidNonce:
			return c.JSON(http.StatusForbidden, echo.Map{"error": e.Message})
		case lottery.CodeNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": e.Message})
		}
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "draw failed, retry later"})
}
