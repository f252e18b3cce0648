package models

import "strings"

// Visibility controls who sees a route in the selector.
type Visibility string

const (
	VisibilityAll       Visibility = "all"
	VisibilityWhitelist Visibility = "whitelist"
)

// DefaultMinPrice is applied when a route arrives without a positive minimum reward.
const DefaultMinPrice int64 = 50_000_000

// Route is a courier lane with its pricing attributes. Routes are immutable once
// loaded into the registry; the whole collection is swapped on every update.
type Route struct {
	ID           string     `json:"id" validate:"required"`
	From         string     `json:"from" validate:"required"`
	To           string     `json:"to" validate:"required"`
	PricePerM3   float64    `json:"pricePerM3" validate:"gte=0"`
	NoCollateral bool       `json:"noCollateral"`
	Visibility   Visibility `json:"visibility" default:"all" validate:"oneof=all whitelist"`
	AllowedCorps []int64    `json:"allowedCorps,omitempty"`
	MinPrice     int64      `json:"minPrice" validate:"gte=0"`
}

// Label renders the route as shown in quotes and express requests.
func (r Route) Label() string {
	return r.From + " ↔ " + r.To
}

// IsCorpRoute reports whether the route is restricted to whitelisted corporations.
func (r Route) IsCorpRoute() bool {
	return r.Visibility == VisibilityWhitelist
}

// Flags lists the badges displayed next to the route.
func (r Route) Flags() []string {
	flags := make([]string, 0, 2)
	if r.IsCorpRoute() {
		flags = append(flags, "🔒 Corp")
	}
	if r.NoCollateral {
		flags = append(flags, "No collateral")
	}
	return flags
}

// OptionLabel is the selector entry text: the label followed by its flags.
func (r Route) OptionLabel() string {
	flags := strings.Join(r.Flags(), " · ")
	if flags == "" {
		return r.Label()
	}
	return r.Label() + " — " + flags
}

// VisibleTo reports whether a member of corpID may see the route.
func (r Route) VisibleTo(corpID int64) bool {
	if !r.IsCorpRoute() {
		return true
	}
	for _, id := range r.AllowedCorps {
		if id == corpID {
			return true
		}
	}
	return false
}

// RouteOption is one selectable entry rebuilt whenever routes are replaced.
type RouteOption struct {
	Value string   `json:"value"`
	Label string   `json:"label"`
	Title string   `json:"title,omitempty"`
	Flags []string `json:"flags,omitempty"`
}
