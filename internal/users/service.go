package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidIdentity indicates the sign-in did not contain a usable provider or subject.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrProfileNotFound indicates that no profile exists for the user id.
	ErrProfileNotFound = errors.New("users: profile not found")
	// ErrDisplayNameRequired indicates an empty display name update.
	ErrDisplayNameRequired = errors.New("users: display name is required")
)

const (
	opResolveSignIn     = "users.resolve_sign_in"
	opGetProfile        = "users.get_profile"
	opUpdateDisplayName = "users.update_display_name"

	maxDisplayNameLength = 320
)

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider club.IDProvider
	Logger     *zap.Logger
}

// Service manages canonical user ids, sign-in identities and member profiles.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider club.IDProvider
	logger     *zap.Logger
	cache      sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = club.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// ResolveSignIn returns the profile for a verified sign-in. The first sign-in
// for a provider+subject pair creates the identity and its profile; the
// supplied display name only seeds new profiles.
func (s *Service) ResolveSignIn(ctx context.Context, signIn SignIn) (club.Profile, error) {
	provider := strings.TrimSpace(signIn.Provider)
	subject := normalizeSubject(provider, signIn.Subject)
	if provider == "" || subject == "" {
		return club.Profile{}, club.NewServiceError(opResolveSignIn, "invalid_identity", club.KindValidation, "Invalid sign-in", ErrInvalidIdentity)
	}

	cacheKey := provider + ":" + subject
	if cachedIdentifier, ok := s.cache.Load(cacheKey); ok {
		if userID, ok := cachedIdentifier.(string); ok {
			s.touch(ctx, provider, subject)
			return s.GetProfile(ctx, userID)
		}
	}

	var profile club.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var identity Identity
		lookupErr := tx.Where("provider = ? AND subject = ?", provider, subject).Take(&identity).Error
		if lookupErr == nil {
			if err := tx.Where("id = ?", identity.UserID).Take(&profile).Error; err != nil {
				return err
			}
			return tx.Model(&Identity{}).
				Where("provider = ? AND subject = ?", provider, subject).
				Update("last_seen_at", s.now().UTC()).Error
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return lookupErr
		}

		userID, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		displayName := truncate(strings.TrimSpace(signIn.DisplayName), maxDisplayNameLength)
		if displayName == "" {
			displayName = subject
		}
		now := s.now().UTC()
		profile = club.Profile{
			ID:          userID,
			DisplayName: displayName,
			CreatedAt:   now,
		}
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
		return tx.Create(&Identity{
			Provider:   provider,
			Subject:    subject,
			UserID:     userID,
			LastSeenAt: now,
			CreatedAt:  now,
		}).Error
	})
	if err != nil {
		s.logger.Error("users service error",
			zap.String("operation", opResolveSignIn),
			zap.String("provider", provider),
			zap.Error(err))
		return club.Profile{}, club.NewServiceError(opResolveSignIn, "persist_failed", club.KindUpstream, "Failed to sign in", err)
	}

	s.cache.Store(cacheKey, profile.ID)
	return profile, nil
}

// GetProfile loads a member profile by id.
func (s *Service) GetProfile(ctx context.Context, userID string) (club.Profile, error) {
	var profile club.Profile
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(userID)).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return club.Profile{}, club.NewServiceError(opGetProfile, "not_found", club.KindNotFound, "Profile not found", ErrProfileNotFound)
	}
	if err != nil {
		s.logger.Error("users service error", zap.String("operation", opGetProfile), zap.Error(err))
		return club.Profile{}, club.NewServiceError(opGetProfile, "query_failed", club.KindUpstream, "Failed to load profile", err)
	}
	return profile, nil
}

// UpdateDisplayName renames the viewer's own profile.
func (s *Service) UpdateDisplayName(ctx context.Context, viewer club.Viewer, displayName string) (club.Profile, error) {
	if viewer.UserID == "" {
		return club.Profile{}, club.NewServiceError(opUpdateDisplayName, "unauthenticated", club.KindUnauthenticated, "Not authenticated", club.ErrUnauthenticated)
	}
	trimmed := strings.TrimSpace(displayName)
	if trimmed == "" {
		return club.Profile{}, club.NewServiceError(opUpdateDisplayName, "display_name_required", club.KindValidation, "Display name is required", ErrDisplayNameRequired)
	}

	result := s.db.WithContext(ctx).
		Model(&club.Profile{}).
		Where("id = ?", viewer.UserID.String()).
		Update("display_name", truncate(trimmed, maxDisplayNameLength))
	if result.Error != nil {
		s.logger.Error("users service error", zap.String("operation", opUpdateDisplayName), zap.Error(result.Error))
		return club.Profile{}, club.NewServiceError(opUpdateDisplayName, "update_failed", club.KindUpstream, "Failed to update profile", result.Error)
	}
	if result.RowsAffected == 0 {
		return club.Profile{}, club.NewServiceError(opUpdateDisplayName, "not_found", club.KindNotFound, "Profile not found", ErrProfileNotFound)
	}
	return s.GetProfile(ctx, viewer.UserID.String())
}

func (s *Service) touch(ctx context.Context, provider, subject string) {
	err := s.db.WithContext(ctx).
		Model(&Identity{}).
		Where("provider = ? AND subject = ?", provider, subject).
		Update("last_seen_at", s.now().UTC()).Error
	if err != nil {
		s.logger.Warn("failed to record identity activity", zap.String("provider", provider), zap.Error(err))
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
