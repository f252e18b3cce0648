package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"speedliner/internal/domain/models"
	domrepo "speedliner/internal/domain/repository"
	"speedliner/internal/usecase"
	"speedliner/pkg/cache"
	xhttp "speedliner/pkg/http"
	"speedliner/pkg/http/middleware"
	xlogger "speedliner/pkg/logger"
	"speedliner/pkg/util"
)

const maxRoutesBody = 4 << 20

// AuditHistory lists the recorded submission attempts of one client.
type AuditHistory interface {
	Recent(ctx context.Context, clientKey string, limit int) ([]models.AuditEvent, error)
}

// Options tune the HTTP surface.
type Options struct {
	ClientCookie  string
	SecureCookie  bool
	AdminToken    string
	Note          string
	RoutesTTL     time.Duration
	ExpressLimit  *middleware.KeyLimiter
	QuoteLimit    *middleware.KeyLimiter
	EventLimit    *middleware.KeyLimiter
	RoutesCache   cache.Service
	History       AuditHistory
	SessionPing   time.Duration
	SessionWriteT time.Duration
}

// QuoteEchoHandler serves quotes, the route list and stateless express requests.
type QuoteEchoHandler struct {
	logger  *xlogger.Logger
	hub     *usecase.SessionHub
	metrics domrepo.Metrics
	opts    Options
}

func NewQuoteEchoHandler(logger *xlogger.Logger, hub *usecase.SessionHub, metrics domrepo.Metrics, opts Options) *QuoteEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if opts.ClientCookie == "" {
		opts.ClientCookie = "speedliner_client"
	}
	return &QuoteEchoHandler{logger: logger, hub: hub, metrics: metrics, opts: opts}
}

func (h *QuoteEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	quoteLimit := middleware.RateLimit(h.opts.QuoteLimit, nil)
	g.GET("/quote", h.Quote, quoteLimit)
	g.POST("/quote", h.Quote, quoteLimit)
	g.GET("/routes", h.Routes)
	g.PUT("/routes", h.ReplaceRoutes)
	g.GET("/express/cooldown", h.Cooldown)
	g.POST("/express", h.Express, middleware.RateLimit(h.opts.ExpressLimit, func(c echo.Context) string {
		return clientKey(c, h.opts.ClientCookie, h.opts.SecureCookie)
	}))
	if h.opts.History != nil {
		g.GET("/express/history", h.History)
	}
	e.GET("/healthz", h.Health)
}

func (h *QuoteEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"routes":   h.hub.Registry().Len(),
		"version":  h.hub.Registry().Version(),
		"sessions": h.hub.Count(),
	})
}

// Quote prices one set of raw inputs. Validation problems come back as 400
// with the same message the calculator form shows.
func (h *QuoteEchoHandler) Quote(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	q, err := h.calculate(req)
	if err != nil {
		return h.validationResponse(c, err)
	}

	res := &models.QuoteResponse{Quote: &q, Message: usecase.RenderQuote(q)}
	if q.ExpressOn {
		preview := usecase.BuildExpressRequest(q, models.Identity{}, h.opts.Note)
		res.Mail = &models.MailPreview{
			Subject: preview.Subject,
			Body:    preview.Body,
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *QuoteEchoHandler) calculate(req *models.QuoteRequest) (models.Quote, error) {
	var route *models.Route
	if req.RouteID != "" {
		if r, ok := h.hub.Registry().Get(req.RouteID); ok {
			route = &r
		}
	}
	q, err := usecase.Calculate(route, req.Volume, req.Collateral, req.Express)
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) && ve != models.ErrNoRouteSelected && h.metrics != nil {
			h.metrics.RecordValidationFailure(ve.Code)
		}
		return models.Quote{}, err
	}
	if h.metrics != nil {
		h.metrics.RecordQuote(q.ExpressOn)
	}
	return q, nil
}

func (h *QuoteEchoHandler) validationResponse(c echo.Context, err error) error {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{Code: ve.Code, Message: ve.Message}})
	}
	h.logger.Error("quote calculation error", xlogger.Error(err))
	return xhttp.InternalServerErrorResponse(c)
}

// Routes lists the selector entries visible to a corporation.
func (h *QuoteEchoHandler) Routes(c echo.Context) error {
	req := &models.RoutesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	reg := h.hub.Registry()
	key := fmt.Sprintf("routes:%d:%d", reg.Version(), req.CorpID)
	ctx := c.Request().Context()

	var options []models.RouteOption
	if h.opts.RoutesCache != nil {
		err := h.opts.RoutesCache.Get(ctx, key, &options)
		switch {
		case err == nil:
			h.logger.Debug("routes cache_hit", xlogger.String("key", key))
			return xhttp.ListResponse(c, options, int64(len(options)))
		case !errors.Is(err, cache.ErrCacheMiss):
			h.logger.Warn("routes cache_get_error", xlogger.Error(err))
		}
	}

	visible := reg.Visible(req.CorpID)
	options = make([]models.RouteOption, 0, len(visible))
	for _, opt := range reg.Options() {
		for _, r := range visible {
			if r.ID == opt.Value {
				options = append(options, opt)
				break
			}
		}
	}

	if h.opts.RoutesCache != nil {
		if err := h.opts.RoutesCache.Set(ctx, key, options, h.opts.RoutesTTL); err != nil {
			h.logger.Warn("routes cache_set_error", xlogger.Error(err))
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, options, int64(len(options)))
}

// ReplaceRoutes swaps the whole route collection.
func (h *QuoteEchoHandler) ReplaceRoutes(c echo.Context) error {
	if !h.authorized(c) {
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("admin token required"))
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRoutesBody))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("read body").WithError(err))
	}

	res, err := h.hub.SetRoutesData(body)
	if err != nil {
		h.logger.Warn("routes replace rejected", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid route document: %v", err))
	}
	h.logger.Info("routes replaced",
		xlogger.Int("accepted", res.Accepted),
		xlogger.Int("rejected", res.Rejected),
		xlogger.Uint64("version", res.Version),
	)
	return xhttp.SuccessResponse(c, res)
}

func (h *QuoteEchoHandler) authorized(c echo.Context) bool {
	if h.opts.AdminToken == "" {
		return true
	}
	got := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.AdminToken)) == 1
}

// Cooldown reports the express lockout of the calling browser.
func (h *QuoteEchoHandler) Cooldown(c echo.Context) error {
	key := clientKey(c, h.opts.ClientCookie, h.opts.SecureCookie)
	remaining := h.hub.CooldownRemainingMs(c.Request().Context(), key)
	res := &models.CooldownResponse{RemainingMs: remaining}
	if remaining > 0 {
		res.Text = "Cooldown active: " + util.FormatCountdown(remaining)
	}
	return xhttp.SuccessResponse(c, res)
}

// History returns the caller's latest express attempts, newest first.
func (h *QuoteEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := clientKey(c, h.opts.ClientCookie, h.opts.SecureCookie)
	events, err := h.opts.History.Recent(c.Request().Context(), key, req.Limit)
	if err != nil {
		h.logger.Error("express history query failed", xlogger.Error(err))
		return xhttp.ServiceUnavailableResponse(c, "audit store unavailable")
	}
	return xhttp.ListResponse(c, events, int64(len(events)))
}

// Express prices the inputs with express on and submits them in one call.
func (h *QuoteEchoHandler) Express(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Express = true

	q, err := h.calculate(req)
	if err != nil {
		return h.validationResponse(c, err)
	}

	key := clientKey(c, h.opts.ClientCookie, h.opts.SecureCookie)
	err = h.hub.SendExpress(c.Request().Context(), key, q, credentialsFrom(c.Request()))

	var (
		cooldown *models.CooldownError
		subErr   *models.SubmissionError
	)
	switch {
	case err == nil:
		return xhttp.CreatedResponse(c, &models.QuoteResponse{Quote: &q, Message: "Express request sent."})
	case errors.Is(err, models.ErrSubmissionInFlight):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("Express request already in progress."))
	case errors.As(err, &cooldown):
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("Cooldown active: "+util.FormatCountdown(cooldown.RemainingMs)).
			WithParam("remaining_ms", cooldown.RemainingMs))
	case errors.As(err, &subErr):
		appErr := xhttp.NewAppError("ERR_SUBMISSION", "", "Express request failed.", http.StatusBadGateway).
			WithParam("kind", string(subErr.Kind))
		if subErr.Kind == models.SubmissionRejected {
			appErr.WithParam("status", subErr.Status)
		}
		return xhttp.AppErrorResponse(c, appErr)
	default:
		h.logger.Error("express submission error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
}

// clientKey identifies the browser across tabs. A missing or malformed cookie
// is replaced by a fresh random id.
func clientKey(c echo.Context, name string, secure bool) string {
	if v, ok := c.Get(name).(string); ok && v != "" {
		return v
	}
	if ck, err := c.Cookie(name); err == nil {
		if id, err := uuid.Parse(ck.Value); err == nil {
			c.Set(name, id.String())
			return id.String()
		}
	}
	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.Set(name, id)
	return id
}

func credentialsFrom(r *http.Request) models.Credentials {
	return models.Credentials{
		Cookie:        r.Header.Get("Cookie"),
		Authorization: r.Header.Get(echo.HeaderAuthorization),
	}
}
