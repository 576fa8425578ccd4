package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/leolab/lottery-engine/internal/lottery"
)

// AdminHandler exposes cache invalidation for out-of-band rule and prize
// edits.  All routes sit behind the admin JWT middleware.
type AdminHandler struct {
	Svc *lottery.Service
}

func NewAdminHandler(svc *lottery.Service) *AdminHandler {
	return &AdminHandler{Svc: svc}
}

// ClearCache drops every cached collection.
func (h *AdminHandler) ClearCache(c echo.Context) error {
	if err := h.Svc.ClearPrizeCache(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cache clear failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearRules drops the cached rule list and, when ?ruleId= is given, that
// rule's detail record.
func (h *AdminHandler) ClearRules(c echo.Context) error {
	var ruleID uint64
	if raw := c.QueryParam("ruleId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ruleId"})
		}
		ruleID = id
	}
	if err := h.Svc.ClearRuleCache(c.Request().Context(), ruleID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cache clear failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// RuleStock reports how much stock a rule has left today.
func (h *AdminHandler) RuleStock(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid rule id"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ruleId":  id,
		"surplus": h.Svc.RuleStock(c.Request().Context(), id),
	})
}

// ClearPrizes drops the cached active-prize collection.
func (h *AdminHandler) ClearPrizes(c echo.Context) error {
	if err := h.Svc.ClearPrizeList(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cache clear failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
