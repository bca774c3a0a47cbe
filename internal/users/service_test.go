package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type countingIDProvider struct {
	next int
}

func (p *countingIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("user-%d", p.next), nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Identity{}, &club.Profile{}); err != nil {
		t.Fatalf("failed to migrate identity schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &countingIDProvider{},
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveSignInCreatesProfileOnce(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	signIn := SignIn{Provider: ProviderEmail, Subject: " Avery@Example.com ", DisplayName: "Avery"}
	profile, err := service.ResolveSignIn(ctx, signIn)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if profile.ID != "user-1" || profile.DisplayName != "Avery" {
		t.Fatalf("unexpected profile %#v", profile)
	}

	// the same address with different casing must map to the same profile.
	again, err := service.ResolveSignIn(ctx, SignIn{Provider: ProviderEmail, Subject: "avery@example.com", DisplayName: "Someone Else"})
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if again.ID != profile.ID {
		t.Fatalf("expected canonical user id to remain stable, got %q", again.ID)
	}
	if again.DisplayName != "Avery" {
		t.Fatalf("display name must only seed new profiles, got %q", again.DisplayName)
	}

	var profileCount, identityCount int64
	db.Model(&club.Profile{}).Count(&profileCount)
	db.Model(&Identity{}).Count(&identityCount)
	if profileCount != 1 || identityCount != 1 {
		t.Fatalf("expected one profile and identity, got %d and %d", profileCount, identityCount)
	}
}

func TestResolveSignInFallsBackToSubjectForDisplayName(t *testing.T) {
	service, _ := newTestService(t)

	profile, err := service.ResolveSignIn(context.Background(), SignIn{Provider: ProviderPhone, Subject: "+15551234567"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if profile.DisplayName != "+15551234567" {
		t.Fatalf("expected phone fallback display name, got %q", profile.DisplayName)
	}
}

func TestResolveSignInRejectsEmptySubject(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.ResolveSignIn(context.Background(), SignIn{Provider: ProviderEmail, Subject: "  "})
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity error, got %v", err)
	}
}

func TestUpdateDisplayName(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	profile, err := service.ResolveSignIn(ctx, SignIn{Provider: ProviderEmail, Subject: "blake@example.com", DisplayName: "blake"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	viewer, err := club.NewViewer(profile.ID)
	if err != nil {
		t.Fatalf("unexpected viewer error: %v", err)
	}

	_, err = service.UpdateDisplayName(ctx, viewer, "   ")
	if club.KindOf(err) != club.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	updated, err := service.UpdateDisplayName(ctx, viewer, "Blake R.")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.DisplayName != "Blake R." {
		t.Fatalf("unexpected display name %q", updated.DisplayName)
	}

	_, err = service.UpdateDisplayName(ctx, club.Viewer{}, "Nobody")
	if club.KindOf(err) != club.KindUnauthenticated {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.GetProfile(context.Background(), "missing")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", err)
	}
}
