package model

// Prize is a catalog entry for something the engine can hand out.
//
// Fields:
//  ID        – primary key identifier.
//  Type      – numeric prize type, see prize_type.go for the ranges.
//  Name      – display name shown to the requester.
//  ImageURL  – optional image shown with a winning result.
//  URL       – optional redirect link (used mostly by fallback prizes).
//  Total     – configured quantity.
//  Remaining – units not yet issued; never exceeds Total.
//  Weight    – reserved for catalog-level weighting.
type Prize struct {
	ID        uint64  `json:"id"`        // prizes.id
	Type      int     `json:"type"`      // prizes.type
	Name      string  `json:"name"`      // prizes.name
	ImageURL  string  `json:"image_url"` // prizes.image_url
	URL       string  `json:"url"`       // prizes.url
	Total     int64   `json:"total"`     // prizes.total
	Remaining int64   `json:"remaining"` // prizes.remaining
	Weight    float64 `json:"weight"`    // prizes.weight
}

// Info projects the prize onto the client-facing shape.  Inventory and
// weight stay server side.
func (p Prize) Info() PrizeInfo {
	return PrizeInfo{
		ID:       p.ID,
		Type:     p.Type,
		Name:     p.Name,
		ImageURL: p.ImageURL,
		URL:      p.URL,
	}
}

// PrizeInfo is the subset of prize fields a draw result exposes.
type PrizeInfo struct {
	ID       uint64 `json:"id"`
	Type     int    `json:"type"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
	URL      string `json:"url,omitempty"`
}

// FallbackPrize is a statically configured consolation entry.  ID 0 is
// reserved for the empty "thanks for participating" outcome.
type FallbackPrize struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Weight int64  `json:"weight"`
	Type   int    `json:"type"`
}

// Info projects the fallback entry onto the client-facing shape.
func (f FallbackPrize) Info() PrizeInfo {
	return PrizeInfo{
		ID:   f.ID,
		Type: f.Type,
		Name: f.Name,
		URL:  f.URL,
	}
}
