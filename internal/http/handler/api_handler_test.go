package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/LinkShield/internal/app/model"
	"github.com/sifan077/LinkShield/internal/app/repository"
	"github.com/sifan077/LinkShield/internal/app/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLinkService struct {
	createFn func(ctx context.Context, input service.CreateLinkInput) (*model.Link, error)
	getFn    func(ctx context.Context, slug string) (*model.Link, error)
	listFn   func(ctx context.Context, limit, offset int) ([]model.Link, error)
	updateFn func(ctx context.Context, slug string, input service.UpdateLinkInput) (*model.Link, error)
}

func (m *mockLinkService) CreateLink(ctx context.Context, input service.CreateLinkInput) (*model.Link, error) {
	return m.createFn(ctx, input)
}

func (m *mockLinkService) GetLink(ctx context.Context, slug string) (*model.Link, error) {
	return m.getFn(ctx, slug)
}

func (m *mockLinkService) ListLinks(ctx context.Context, limit, offset int) ([]model.Link, error) {
	return m.listFn(ctx, limit, offset)
}

func (m *mockLinkService) UpdateLink(ctx context.Context, slug string, input service.UpdateLinkInput) (*model.Link, error) {
	return m.updateFn(ctx, slug, input)
}

func newAPIApp(svc service.LinkService) *fiber.App {
	app := fiber.New()
	NewAPIHandler(APIDeps{LinkService: svc}).Register(app)
	return app
}

func apiCall(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestCreateLink(t *testing.T) {
	var got service.CreateLinkInput
	svc := &mockLinkService{
		createFn: func(_ context.Context, input service.CreateLinkInput) (*model.Link, error) {
			got = input
			return &model.Link{
				ID:               "l-1",
				Slug:             input.Slug,
				DestinationURL:   input.DestinationURL,
				ShieldEnabled:    true,
				IsUltraLink:      input.IsUltraLink,
				ProtectionConfig: `{"level":1,"timer":5000,"features":["adaptive-content"]}`,
			}, nil
		},
	}
	app := newAPIApp(svc)

	status, body := apiCall(t, app, http.MethodPost, "/api/links",
		`{"slug":"promo","destination_url":"https://example.com","is_ultra_link":true,"protection":{"level":1,"timer":5000,"features":["adaptive-content"]}}`)

	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "promo", got.Slug)
	assert.True(t, got.IsUltraLink)
	assert.JSONEq(t, `{"level":1,"timer":5000,"features":["adaptive-content"]}`, string(got.Protection))
	assert.Equal(t, true, body["shield_enabled"])
	assert.Equal(t, float64(1), body["protection"].(map[string]any)["level"])
}

func TestCreateLink_GeneratesSlug(t *testing.T) {
	var got service.CreateLinkInput
	svc := &mockLinkService{
		createFn: func(_ context.Context, input service.CreateLinkInput) (*model.Link, error) {
			got = input
			return &model.Link{ID: "l-1", Slug: input.Slug}, nil
		},
	}

	status, _ := apiCall(t, newAPIApp(svc), http.MethodPost, "/api/links", `{"destination_url":"example.com"}`)

	require.Equal(t, http.StatusCreated, status)
	assert.Len(t, got.Slug, 8)
}

func TestCreateLink_Rejected(t *testing.T) {
	svc := &mockLinkService{
		createFn: func(context.Context, service.CreateLinkInput) (*model.Link, error) {
			return nil, fmt.Errorf("create link: %w", repository.ErrSlugTaken)
		},
	}
	app := newAPIApp(svc)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{"destination_url":`, http.StatusBadRequest},
		{"missing destination", `{"slug":"promo"}`, http.StatusBadRequest},
		{"slug with symbols", `{"slug":"a/b!","destination_url":"https://example.com"}`, http.StatusBadRequest},
		{"slug too short", `{"slug":"ab","destination_url":"https://example.com"}`, http.StatusBadRequest},
		{"slug taken", `{"slug":"promo","destination_url":"https://example.com"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := apiCall(t, app, http.MethodPost, "/api/links", tt.body)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetLink(t *testing.T) {
	svc := &mockLinkService{
		getFn: func(_ context.Context, slug string) (*model.Link, error) {
			if slug == "promo" {
				return &model.Link{ID: "l-1", Slug: "promo", Clicks: 4, Views: 9}, nil
			}
			return nil, fmt.Errorf("get link: %w", repository.ErrLinkNotFound)
		},
	}
	app := newAPIApp(svc)

	status, body := apiCall(t, app, http.MethodGet, "/api/links/promo", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), body["clicks"])
	assert.Equal(t, float64(9), body["views"])
	assert.Nil(t, body["protection"])

	status, _ = apiCall(t, app, http.MethodGet, "/api/links/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListLinks_ClampsPaging(t *testing.T) {
	var gotLimit, gotOffset int
	svc := &mockLinkService{
		listFn: func(_ context.Context, limit, offset int) ([]model.Link, error) {
			gotLimit, gotOffset = limit, offset
			return []model.Link{{ID: "l-1", Slug: "a"}, {ID: "l-2", Slug: "b"}}, nil
		},
	}

	status, body := apiCall(t, newAPIApp(svc), http.MethodGet, "/api/links?limit=500&offset=10", "")

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 20, gotLimit)
	assert.Equal(t, 10, gotOffset)
	assert.Equal(t, float64(2), body["count"])
}

func TestUpdateLink(t *testing.T) {
	var got service.UpdateLinkInput
	svc := &mockLinkService{
		updateFn: func(_ context.Context, slug string, input service.UpdateLinkInput) (*model.Link, error) {
			if slug != "promo" {
				return nil, repository.ErrLinkNotFound
			}
			got = input
			return &model.Link{ID: "l-1", Slug: slug, Disabled: true}, nil
		},
	}
	app := newAPIApp(svc)

	status, body := apiCall(t, app, http.MethodPatch, "/api/links/promo", `{"disabled":true}`)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, got.Disabled)
	assert.True(t, *got.Disabled)
	assert.Nil(t, got.Title)
	assert.Equal(t, true, body["disabled"])

	status, _ = apiCall(t, app, http.MethodPatch, "/api/links/promo", `{"destination_url":""}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = apiCall(t, app, http.MethodPatch, "/api/links/other", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, status)
}
