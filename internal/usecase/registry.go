package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"speedliner/internal/domain/models"
	"speedliner/pkg/logger"
)

// RouteRegistry holds the current route collection. The collection is only
// ever swapped as a whole; readers see either the old or the new one.
type RouteRegistry struct {
	mu       sync.RWMutex
	routes   []models.Route
	byID     map[string]int
	options  []models.RouteOption
	version  uint64
	validate *validator.Validate
	logger   *logger.Logger
}

func NewRouteRegistry(log *logger.Logger) *RouteRegistry {
	if log == nil {
		log = logger.Nop()
	}
	return &RouteRegistry{
		byID:     make(map[string]int),
		validate: validator.New(),
		logger:   log,
	}
}

// ReplaceJSON decodes a raw route document and replaces the collection.
// A document that is not a JSON array leaves the registry untouched.
func (r *RouteRegistry) ReplaceJSON(raw []byte) (models.ReplaceRoutesResponse, error) {
	routes, rejected, err := DecodeRoutes(raw)
	if err != nil {
		return models.ReplaceRoutesResponse{}, err
	}
	for _, rej := range rejected {
		r.logger.Warn("route entry rejected", logger.Int("index", rej.Index), logger.Error(rej.Err))
	}
	res := r.Replace(routes)
	res.Rejected += len(rejected)
	return res, nil
}

// Replace validates routes and swaps them in. Malformed entries and duplicate
// ids are skipped and logged.
func (r *RouteRegistry) Replace(routes []models.Route) models.ReplaceRoutesResponse {
	accepted := make([]models.Route, 0, len(routes))
	byID := make(map[string]int, len(routes))
	rejected := 0

	for i := range routes {
		route := routes[i]
		if err := r.coerce(&route); err != nil {
			r.logger.Warn("route rejected",
				logger.String("route_id", route.ID),
				logger.Int("index", i),
				logger.Error(err),
			)
			rejected++
			continue
		}
		if _, dup := byID[route.ID]; dup {
			r.logger.Warn("duplicate route id skipped", logger.String("route_id", route.ID))
			rejected++
			continue
		}
		byID[route.ID] = len(accepted)
		accepted = append(accepted, route)
	}

	options := buildOptions(accepted)

	r.mu.Lock()
	r.routes = accepted
	r.byID = byID
	r.options = options
	r.version++
	version := r.version
	r.mu.Unlock()

	r.logger.Info("routes replaced",
		logger.Int("accepted", len(accepted)),
		logger.Int("rejected", rejected),
		logger.Uint64("version", version),
	)

	return models.ReplaceRoutesResponse{
		Accepted: len(accepted),
		Rejected: rejected,
		Version:  version,
	}
}

func (r *RouteRegistry) coerce(route *models.Route) error {
	route.ID = strings.TrimSpace(route.ID)
	route.From = strings.TrimSpace(route.From)
	route.To = strings.TrimSpace(route.To)
	route.Visibility = models.Visibility(strings.ToLower(strings.TrimSpace(string(route.Visibility))))
	if err := defaults.Set(route); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	if route.MinPrice <= 0 {
		route.MinPrice = models.DefaultMinPrice
	}
	if err := r.validate.Struct(route); err != nil {
		return err
	}
	route.AllowedCorps = slices.Clone(route.AllowedCorps)
	return nil
}

// detach copies the slice fields so stored routes never alias a caller's value.
func detach(route models.Route) models.Route {
	route.AllowedCorps = slices.Clone(route.AllowedCorps)
	return route
}

// Get returns the route with id. Callers receive a copy.
func (r *RouteRegistry) Get(id string) (models.Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return models.Route{}, false
	}
	return detach(r.routes[idx]), true
}

// List returns all routes in source order.
func (r *RouteRegistry) List() []models.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Route, len(r.routes))
	for i, route := range r.routes {
		out[i] = detach(route)
	}
	return out
}

// Visible filters whitelist routes down to those open to corpID.
func (r *RouteRegistry) Visible(corpID int64) []models.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Route, 0, len(r.routes))
	for _, route := range r.routes {
		if route.VisibleTo(corpID) {
			out = append(out, detach(route))
		}
	}
	return out
}

// Options returns the selector entries built on the last replace.
func (r *RouteRegistry) Options() []models.RouteOption {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.RouteOption, len(r.options))
	copy(out, r.options)
	return out
}

func (r *RouteRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *RouteRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

func buildOptions(routes []models.Route) []models.RouteOption {
	options := make([]models.RouteOption, 0, len(routes))
	for _, route := range routes {
		opt := models.RouteOption{
			Value: route.ID,
			Label: route.OptionLabel(),
			Flags: route.Flags(),
		}
		if route.IsCorpRoute() {
			opt.Title = "Corp route"
		}
		options = append(options, opt)
	}
	return options
}

// RejectedEntry is a route document entry that could not be decoded.
type RejectedEntry struct {
	Index int
	Err   error
}

// wireRoute accepts the loose shapes route sources publish: numeric or string
// ids and prices, and either minPrice or min_price.
type wireRoute struct {
	ID           flexString `json:"id"`
	From         string     `json:"from"`
	To           string     `json:"to"`
	PricePerM3   flexFloat  `json:"pricePerM3"`
	NoCollateral bool       `json:"noCollateral"`
	Visibility   string     `json:"visibility"`
	AllowedCorps []flexInt  `json:"allowedCorps"`
	MinPrice     *flexFloat `json:"minPrice"`
	MinPriceAlt  *flexFloat `json:"min_price"`
}

// DecodeRoutes parses a JSON array of routes. Entries that fail to decode are
// reported individually; only a malformed document is an error.
func DecodeRoutes(raw []byte) ([]models.Route, []RejectedEntry, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &entries); err != nil {
		return nil, nil, fmt.Errorf("decode routes: %w", err)
	}

	routes := make([]models.Route, 0, len(entries))
	var rejected []RejectedEntry
	for i, entry := range entries {
		var w wireRoute
		if err := json.Unmarshal(entry, &w); err != nil {
			rejected = append(rejected, RejectedEntry{Index: i, Err: err})
			continue
		}
		route := models.Route{
			ID:           string(w.ID),
			From:         w.From,
			To:           w.To,
			PricePerM3:   float64(w.PricePerM3),
			NoCollateral: w.NoCollateral,
			Visibility:   models.Visibility(w.Visibility),
		}
		if len(w.AllowedCorps) > 0 {
			route.AllowedCorps = make([]int64, len(w.AllowedCorps))
			for j, id := range w.AllowedCorps {
				route.AllowedCorps[j] = int64(id)
			}
		}
		switch {
		case w.MinPrice != nil:
			route.MinPrice = int64(*w.MinPrice)
		case w.MinPriceAlt != nil:
			route.MinPrice = int64(*w.MinPriceAlt)
		}
		routes = append(routes, route)
	}
	return routes, rejected, nil
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	*s = flexString(n.String())
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = flexInt(f)
	return nil
}
