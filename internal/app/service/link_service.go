package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/LinkShield/internal/app/model"
	"github.com/sifan077/LinkShield/internal/app/repository"
	"github.com/sifan077/LinkShield/internal/app/shield/protection"
)

// LinkService defines behaviour-level operations on protected links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error)
	GetLink(ctx context.Context, slug string) (*model.Link, error)
	ListLinks(ctx context.Context, limit, offset int) ([]model.Link, error)
	UpdateLink(ctx context.Context, slug string, input UpdateLinkInput) (*model.Link, error)
}

type linkService struct {
	repo repository.LinkRepository
}

// NewLinkService returns a service implementation backed by the given repository.
func NewLinkService(repo repository.LinkRepository) LinkService {
	return &linkService{repo: repo}
}

// CreateLinkInput captures data required to create a link.
type CreateLinkInput struct {
	Slug           string
	DestinationURL string
	Title          string
	Description    string
	ShieldEnabled  bool
	IsUltraLink    bool
	Protection     json.RawMessage
	Disabled       bool
	ExpiresAt      *time.Time
}

// UpdateLinkInput captures fields that can be changed on an existing link.
type UpdateLinkInput struct {
	DestinationURL *string
	Title          *string
	Description    *string
	ShieldEnabled  *bool
	IsUltraLink    *bool
	Protection     json.RawMessage
	Disabled       *bool
	ExpiresAt      *time.Time
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	link := &model.Link{
		ID:             uuid.NewString(),
		Slug:           input.Slug,
		DestinationURL: input.DestinationURL,
		Title:          input.Title,
		Description:    input.Description,
		ShieldEnabled:  input.ShieldEnabled || input.IsUltraLink,
		IsUltraLink:    input.IsUltraLink,
		Disabled:       input.Disabled,
		ExpiresAt:      input.ExpiresAt,
	}

	cfg, err := canonicalProtection(input.Protection)
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	link.ProtectionConfig = cfg

	if err := s.repo.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	return link, nil
}

func (s *linkService) GetLink(ctx context.Context, slug string) (*model.Link, error) {
	link, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, limit, offset int) ([]model.Link, error) {
	links, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

func (s *linkService) UpdateLink(ctx context.Context, slug string, input UpdateLinkInput) (*model.Link, error) {
	link, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}

	if input.DestinationURL != nil {
		link.DestinationURL = *input.DestinationURL
	}
	if input.Title != nil {
		link.Title = *input.Title
	}
	if input.Description != nil {
		link.Description = *input.Description
	}
	if input.ShieldEnabled != nil {
		link.ShieldEnabled = *input.ShieldEnabled
	}
	if input.IsUltraLink != nil {
		link.IsUltraLink = *input.IsUltraLink
	}
	if link.IsUltraLink {
		link.ShieldEnabled = true
	}
	if len(input.Protection) > 0 {
		cfg, err := canonicalProtection(input.Protection)
		if err != nil {
			return nil, fmt.Errorf("update link: %w", err)
		}
		link.ProtectionConfig = cfg
	}
	if input.Disabled != nil {
		link.Disabled = *input.Disabled
	}
	if input.ExpiresAt != nil {
		link.ExpiresAt = input.ExpiresAt
	}

	if err := s.repo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("update link: %w", err)
	}
	return link, nil
}

// canonicalProtection stores the config the way the engine will read it back:
// clamped, with unknown features dropped.
func canonicalProtection(raw json.RawMessage) (string, error) {
	var source any
	if len(raw) > 0 {
		source = []byte(raw)
	}
	data, err := json.Marshal(protection.Load(source))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
