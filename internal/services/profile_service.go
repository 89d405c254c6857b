package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/bastion/internal/models"
)

// ProfileCreator provisions security profiles
type ProfileCreator interface {
	Create(ctx context.Context, id, email string) (*models.SecurityProfile, error)
}

// ProfileService provisions a zeroed security profile when an identity registers
type ProfileService struct {
	repo   ProfileCreator
	audit  AuditRecorder
	logger *slog.Logger
}

func NewProfileService(repo ProfileCreator, audit AuditRecorder, logger *slog.Logger) *ProfileService {
	return &ProfileService{repo: repo, audit: audit, logger: logger}
}

// Provision creates the profile and records a registration event
func (s *ProfileService) Provision(ctx context.Context, userID, email string, rc models.RequestContext) (*models.SecurityProfile, error) {
	profile, err := s.repo.Create(ctx, userID, email)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrBadRequest):
			return nil, err
		default:
			s.logger.Error("failed to provision security profile",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("failed to provision security profile: %w: %w", models.ErrInfrastructure, err)
		}
	}

	s.audit.LogAuthEvent(ctx, newAuditEntry(models.EventRegistration, profile.ID, profile.Email, rc, true, nil))
	return profile, nil
}
