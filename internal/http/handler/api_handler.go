package handler

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sifan077/LinkShield/internal/app/model"
	"github.com/sifan077/LinkShield/internal/app/repository"
	"github.com/sifan077/LinkShield/internal/app/service"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
	validator   *validator.Validate
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:      logger,
		linkService: deps.LinkService,
		validator:   validator.New(),
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
			links.Get("/:slug", h.GetLink)
			links.Patch("/:slug", h.UpdateLink)
		}
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	Slug           string          `json:"slug,omitempty" validate:"omitempty,min=3,max=64,alphanum"`
	DestinationURL string          `json:"destination_url" validate:"required,max=2048"`
	Title          string          `json:"title,omitempty" validate:"max=255"`
	Description    string          `json:"description,omitempty" validate:"max=2000"`
	ShieldEnabled  bool            `json:"shield_enabled,omitempty"`
	IsUltraLink    bool            `json:"is_ultra_link,omitempty"`
	Protection     json.RawMessage `json:"protection,omitempty"`
	Disabled       bool            `json:"disabled,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
}

// LinkResponse is the management view of a link.
type LinkResponse struct {
	ID             string          `json:"id"`
	Slug           string          `json:"slug"`
	DestinationURL string          `json:"destination_url"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	ShieldEnabled  bool            `json:"shield_enabled"`
	IsUltraLink    bool            `json:"is_ultra_link"`
	Protection     json.RawMessage `json:"protection,omitempty"`
	Disabled       bool            `json:"disabled"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	Clicks         int64           `json:"clicks"`
	Views          int64           `json:"views"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toLinkResponse(link *model.Link) LinkResponse {
	resp := LinkResponse{
		ID:             link.ID,
		Slug:           link.Slug,
		DestinationURL: link.DestinationURL,
		Title:          link.Title,
		Description:    link.Description,
		ShieldEnabled:  link.ShieldEnabled,
		IsUltraLink:    link.IsUltraLink,
		Disabled:       link.Disabled,
		ExpiresAt:      link.ExpiresAt,
		Clicks:         link.Clicks,
		Views:          link.Views,
		CreatedAt:      link.CreatedAt,
	}
	if link.ProtectionConfig != "" {
		resp.Protection = json.RawMessage(link.ProtectionConfig)
	}
	return resp
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	slug := req.Slug
	if slug == "" {
		slug = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	link, err := h.linkService.CreateLink(userContext(c), service.CreateLinkInput{
		Slug:           slug,
		DestinationURL: req.DestinationURL,
		Title:          req.Title,
		Description:    req.Description,
		ShieldEnabled:  req.ShieldEnabled,
		IsUltraLink:    req.IsUltraLink,
		Protection:     req.Protection,
		Disabled:       req.Disabled,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrSlugTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "slug already taken",
			})
		}
		h.logger.Error("failed to create link", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create link",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(toLinkResponse(link))
}

// ListLinks handles GET /api/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	limit := 20
	offset := 0

	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed >= 0 {
		offset = parsed
	}

	links, err := h.linkService.ListLinks(userContext(c), limit, offset)
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}

	response := make([]LinkResponse, len(links))
	for i := range links {
		response[i] = toLinkResponse(&links[i])
	}

	return c.JSON(fiber.Map{
		"links":  response,
		"limit":  limit,
		"offset": offset,
		"count":  len(response),
	})
}

// GetLink handles GET /api/links/:slug
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	slug := c.Params("slug")

	link, err := h.linkService.GetLink(userContext(c), slug)
	if err != nil {
		return h.linkError(c, err, slug, "failed to get link")
	}

	return c.JSON(toLinkResponse(link))
}

// UpdateLinkRequest represents the request body for updating a link.
type UpdateLinkRequest struct {
	DestinationURL *string         `json:"destination_url,omitempty" validate:"omitempty,min=1,max=2048"`
	Title          *string         `json:"title,omitempty" validate:"omitempty,max=255"`
	Description    *string         `json:"description,omitempty" validate:"omitempty,max=2000"`
	ShieldEnabled  *bool           `json:"shield_enabled,omitempty"`
	IsUltraLink    *bool           `json:"is_ultra_link,omitempty"`
	Protection     json.RawMessage `json:"protection,omitempty"`
	Disabled       *bool           `json:"disabled,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
}

// UpdateLink handles PATCH /api/links/:slug
func (h *APIHandler) UpdateLink(c *fiber.Ctx) error {
	slug := c.Params("slug")

	var req UpdateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	link, err := h.linkService.UpdateLink(userContext(c), slug, service.UpdateLinkInput{
		DestinationURL: req.DestinationURL,
		Title:          req.Title,
		Description:    req.Description,
		ShieldEnabled:  req.ShieldEnabled,
		IsUltraLink:    req.IsUltraLink,
		Protection:     req.Protection,
		Disabled:       req.Disabled,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		return h.linkError(c, err, slug, "failed to update link")
	}

	return c.JSON(toLinkResponse(link))
}

func (h *APIHandler) linkError(c *fiber.Ctx, err error, slug, msg string) error {
	if errors.Is(err, repository.ErrLinkNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "link not found",
		})
	}
	h.logger.Error(msg, zap.Error(err), zap.String("slug", slug))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func validationError(c *fiber.Ctx, err error) error {
	var fields []string
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field())+": "+fe.Tag())
		}
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "validation failed",
		"fields": fields,
	})
}
