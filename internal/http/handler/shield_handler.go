package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sifan077/LinkShield/internal/app/model"
	"github.com/sifan077/LinkShield/internal/app/repository"
	"github.com/sifan077/LinkShield/internal/app/shield/classifier"
	"github.com/sifan077/LinkShield/internal/app/shield/payload"
	"github.com/sifan077/LinkShield/internal/app/shield/protection"
	"github.com/sifan077/LinkShield/internal/app/shield/session"
	httpUtil "github.com/sifan077/LinkShield/internal/http/util"
	"github.com/sifan077/LinkShield/internal/http/view"
	infraPrometheus "github.com/sifan077/LinkShield/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	defaultTokenTTL   = 15 * time.Minute
	counterTimeout    = 3 * time.Second
	maxEventBatchSize = 1000
)

// ShieldDeps groups dependencies required by the protected link handlers.
type ShieldDeps struct {
	Logger   *zap.Logger
	Links    repository.LinkRepository
	Counters repository.CounterRepository
	Codec    *payload.Codec
	Registry *session.Registry
	Latch    session.Latch
	Recorder session.Recorder
	Metrics  *infraPrometheus.ShieldMetrics

	// UltraPicker chooses the navigation method for Ultra-Link visits.
	UltraPicker  session.StrategyPicker
	Secret       []byte
	TokenTTL     time.Duration
	TickInterval time.Duration
	Options      session.Options
	Cloak        view.CloakContent
}

// ShieldHandler serves protected links and the endpoints their page runtime
// talks to while the visit is gated.
type ShieldHandler struct {
	logger   *zap.Logger
	links    repository.LinkRepository
	counters repository.CounterRepository
	codec    *payload.Codec
	registry *session.Registry
	tokens   *httpUtil.TokenSigner
	recorder session.Recorder
	metrics  *infraPrometheus.ShieldMetrics
	deps     session.Deps
	opts     session.Options
	tick     time.Duration
	cloak    view.CloakContent
	now      func() time.Time
}

// NewShieldHandler creates a shield handler with the provided dependencies.
func NewShieldHandler(deps ShieldDeps) *ShieldHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	registry := deps.Registry
	if registry == nil {
		registry = session.NewRegistry(nil)
	}

	return &ShieldHandler{
		logger:   logger,
		links:    deps.Links,
		counters: deps.Counters,
		codec:    deps.Codec,
		registry: registry,
		tokens:   httpUtil.NewTokenSigner(deps.Secret, ttl),
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		deps: session.Deps{
			Decoder:     deps.Codec,
			Latch:       deps.Latch,
			UltraPicker: deps.UltraPicker,
			Recorder:    deps.Recorder,
			Logger:      logger,
		},
		opts:  deps.Options,
		tick:  deps.TickInterval,
		cloak: deps.Cloak,
		now:   time.Now,
	}
}

// Register wires protected link routes onto the provided router. The catch-all
// slug route must be registered after every fixed path. sessionMiddleware
// guards the endpoints the page runtime calls.
func (h *ShieldHandler) Register(router fiber.Router, sessionMiddleware ...fiber.Handler) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:slug", h.Resolve)

	s := router.Group("/:slug/_s/:token", sessionMiddleware...)
	s.Post("/events", h.Events)
	s.Get("/state", h.State)
	s.Post("/proceed", h.Proceed)
	s.Post("/abandon", h.Abandon)
}

// Health is a simple root endpoint so we know the service is running.
func (h *ShieldHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":  "LinkShield",
		"status":   "ok",
		"sessions": h.registry.Len(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:slug: direct redirect, cloaked page or gated page.
func (h *ShieldHandler) Resolve(c *fiber.Ctx) error {
	slug := c.Params("slug")
	ctx := userContext(c)

	link, loadErr := h.loadLink(ctx, slug)
	if loadErr != nil {
		return h.renderStatus(c, loadErr.StatusCode, loadErr.Heading, loadErr.Message)
	}
	h.countView(link.ID)

	if !link.ShieldEnabled && !link.IsUltraLink {
		return h.redirectDirect(c, link)
	}

	cfg := loadProtection(link.ProtectionConfig)

	sealed, err := h.codec.Encode(link.DestinationURL, link.ID)
	if err != nil {
		h.logger.Error("failed to seal destination", zap.Error(err), zap.String("slug", slug))
		return h.renderStatus(c, fiber.StatusInternalServerError, "Something went wrong", "Please try again later.")
	}

	s := session.New(session.Params{
		ID: uuid.NewString(),
		Link: session.Link{
			ID:          link.ID,
			Slug:        link.Slug,
			Title:       link.Title,
			IsUltraLink: link.IsUltraLink,
		},
		Config:  cfg,
		Payload: sealed,
		Agent:   c.Get(fiber.HeaderUserAgent),
		Probe:   classifier.StaticProbe(classifier.HeaderProbe{Get: func(key string) string { return c.Get(key) }}.Probe()),
	}, h.deps, h.opts)

	snap := s.Begin(h.now())
	h.metrics.Verdict(snap.Verdict.String(), link.IsUltraLink)

	if snap.State == session.StateCloaked {
		h.metrics.Cloaked()
		return h.renderCloaked(c, link, cfg)
	}

	runner := session.Start(context.Background(), s, h.tick, nil)
	h.registry.Add(s, runner)
	h.metrics.SetActiveSessions(h.registry.Len())

	token, err := h.tokens.Issue(link.Slug, s.ID())
	if err != nil {
		h.registry.Abandon(s.ID())
		h.logger.Error("failed to issue session token", zap.Error(err))
		return h.renderStatus(c, fiber.StatusInternalServerError, "Something went wrong", "Please try again later.")
	}

	html, err := view.RenderGatedPage(view.GatedPageData{
		Title:            link.Title,
		SessionPath:      "/" + link.Slug + "/_s/" + token,
		RemainingSeconds: snap.RemainingSeconds,
		AutoRedirect:     cfg.AutoProceed(),
	})
	if err != nil {
		h.registry.Abandon(s.ID())
		h.logger.Error("failed to render gated page", zap.Error(err))
		return h.renderStatus(c, fiber.StatusInternalServerError, "Something went wrong", "Please try again later.")
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Type("html", "utf-8").SendString(html)
}

// EventRequest is one batch of interactions reported by the page runtime.
type EventRequest struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Events handles POST /:slug/_s/:token/events.
func (h *ShieldHandler) Events(c *fiber.Ctx) error {
	s, err := h.lookup(c)
	if err != nil {
		return h.sessionError(c, err)
	}

	var req EventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	kind, err := classifier.ParseEventType(req.Type)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	count := req.Count
	if count > maxEventBatchSize {
		count = maxEventBatchSize
	}

	snap := s.Observe(userContext(c), h.now(), classifier.Event{Type: kind, Count: count})
	return c.JSON(snap)
}

// State handles GET /:slug/_s/:token/state. A navigation produced by
// auto-proceed is returned by the first poll after it. Finished sessions stay
// registered until the sweeper drops them, so late triggers still get a 409.
func (h *ShieldHandler) State(c *fiber.Ctx) error {
	s, err := h.lookup(c)
	if err != nil {
		return h.sessionError(c, err)
	}

	snap := s.Poll(userContext(c), h.now())
	if snap.Navigation != nil {
		h.metrics.Redirect(string(snap.Navigation.Method))
	}

	return c.JSON(snap)
}

// Proceed handles POST /:slug/_s/:token/proceed, the manual trigger.
func (h *ShieldHandler) Proceed(c *fiber.Ctx) error {
	s, err := h.lookup(c)
	if err != nil {
		return h.sessionError(c, err)
	}

	nav, err := s.Proceed(userContext(c), h.now())

	switch {
	case err == nil:
		h.metrics.Redirect(string(nav.Method))
		return c.JSON(fiber.Map{"navigation": nav})
	case errors.Is(err, session.ErrNotReady), errors.Is(err, session.ErrAlreadyRedirected):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, session.ErrClosed):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		if errors.Is(err, session.ErrPayloadDecode) {
			h.metrics.DecodeFailure()
		}
		// The visitor only ever sees a generic error for a broken payload.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}
}

// Abandon handles POST /:slug/_s/:token/abandon, sent on pagehide.
func (h *ShieldHandler) Abandon(c *fiber.Ctx) error {
	s, err := h.lookup(c)
	if err != nil {
		return h.sessionError(c, err)
	}

	if h.registry.Abandon(s.ID()) {
		h.logger.Debug("session abandoned", zap.String("session_id", s.ID()))
	}
	h.metrics.SetActiveSessions(h.registry.Len())
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ShieldHandler) lookup(c *fiber.Ctx) (*session.Session, error) {
	id, err := h.tokens.Validate(c.Params("slug"), c.Params("token"))
	if err != nil {
		return nil, err
	}
	s, ok := h.registry.Get(id)
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s, nil
}

func (h *ShieldHandler) sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, httpUtil.ErrInvalidToken):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, session.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		h.logger.Error("failed to resolve session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}
}

func (h *ShieldHandler) redirectDirect(c *fiber.Ctx, link *model.Link) error {
	now := h.now()
	if h.recorder != nil {
		h.recorder.Record(context.Background(), session.ActionRecord{
			SessionID: uuid.NewString(),
			LinkID:    link.ID,
			Action:    session.ActionProceed,
			Timestamp: now,
		})
	}
	h.metrics.Redirect("http")

	target := session.NormalizeURL(link.DestinationURL)
	h.logger.Debug("redirecting unprotected link", zap.String("slug", link.Slug), zap.String("target", target))
	return c.Redirect(target, fiber.StatusFound)
}

func (h *ShieldHandler) renderCloaked(c *fiber.Ctx, link *model.Link, cfg protection.Config) error {
	var topic *view.CloakTopic
	if cfg.Features.Has(protection.FeatureAdaptiveContent) {
		topic = &view.CloakTopic{Title: link.Title, Description: link.Description}
	}

	html, err := view.RenderCloakedPage(h.cloak, topic)
	if err != nil {
		h.logger.Error("failed to render cloaked page", zap.Error(err))
		return h.renderStatus(c, fiber.StatusInternalServerError, "Something went wrong", "Please try again later.")
	}
	return c.Type("html", "utf-8").SendString(html)
}

func (h *ShieldHandler) renderStatus(c *fiber.Ctx, status int, heading, message string) error {
	html, err := view.RenderStatusPage(view.StatusPageData{Heading: heading, Message: message})
	if err != nil {
		return c.Status(status).SendString(heading)
	}
	return c.Status(status).Type("html", "utf-8").SendString(html)
}

func (h *ShieldHandler) countView(linkID string) {
	if h.counters == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), counterTimeout)
		defer cancel()
		if err := h.counters.IncrementViews(ctx, linkID); err != nil {
			h.logger.Warn("failed to increment link views", zap.String("link_id", linkID), zap.Error(err))
		}
	}()
}

type linkLoadError struct {
	StatusCode int
	Heading    string
	Message    string
}

func (h *ShieldHandler) loadLink(ctx context.Context, slug string) (*model.Link, *linkLoadError) {
	link, err := h.links.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, &linkLoadError{
				StatusCode: fiber.StatusNotFound,
				Heading:    "Link not found",
				Message:    "This link does not exist.",
			}
		}
		h.logger.Error("failed to load link", zap.Error(err), zap.String("slug", slug))
		return nil, &linkLoadError{
			StatusCode: fiber.StatusInternalServerError,
			Heading:    "Something went wrong",
			Message:    "Please try again later.",
		}
	}

	if link.Disabled {
		return nil, &linkLoadError{
			StatusCode: fiber.StatusGone,
			Heading:    "Link unavailable",
			Message:    "This link has been disabled.",
		}
	}
	if link.ExpiresAt != nil && time.Now().After(*link.ExpiresAt) {
		return nil, &linkLoadError{
			StatusCode: fiber.StatusGone,
			Heading:    "Link expired",
			Message:    "This link is no longer available.",
		}
	}

	return link, nil
}

func loadProtection(raw string) protection.Config {
	if raw == "" {
		return protection.Default()
	}
	return protection.Load(raw)
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
