package models

// Requests for the quote HTTP endpoints.

type QuoteRequest struct {
	RouteID    string `query:"route" json:"route" validate:"max=64"`
	Volume     string `query:"volume" json:"volume" validate:"max=32"`
	Collateral string `query:"collateral" json:"collateral" validate:"max=32"`
	Express    bool   `query:"express" json:"express"`
}

type QuoteResponse struct {
	Quote   *Quote       `json:"quote,omitempty"`
	Message string       `json:"message"`
	Mail    *MailPreview `json:"mail,omitempty"`
}

// MailPreview is the in-game mail an express quote would produce.
type MailPreview struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type ReplaceRoutesResponse struct {
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Version  uint64 `json:"version"`
}

type RoutesRequest struct {
	CorpID int64 `query:"corp" json:"corp" validate:"gte=0"`
}

type CooldownResponse struct {
	RemainingMs int64  `json:"remaining_ms"`
	Text        string `json:"text,omitempty"`
}

type HistoryRequest struct {
	Limit int `query:"limit" default:"20" validate:"gte=1,lte=100"`
}
