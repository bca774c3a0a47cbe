package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	"github.com/MarcoPoloResearchLab/movieclub/internal/users"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opStartMagicLink    = "auth.start_magic_link"
	opCompleteMagicLink = "auth.complete_magic_link"
	opStartPhoneCode    = "auth.start_phone_code"
	opVerifyPhoneCode   = "auth.verify_phone_code"
	opPurgeChallenges   = "auth.purge_challenges"

	defaultMagicLinkTTL   = 15 * time.Minute
	defaultPhoneCodeTTL   = 10 * time.Minute
	defaultMaxCodeAttempt = 5
	magicLinkTokenBytes   = 32
)

var (
	ErrEmailRequired       = errors.New("auth: email is required")
	ErrInvalidEmail        = errors.New("auth: invalid email address")
	ErrPhoneRequired       = errors.New("auth: phone number is required")
	ErrInvalidPhone        = errors.New("auth: invalid phone number")
	ErrPhoneCodeRequired   = errors.New("auth: phone and code are required")
	ErrChallengeInvalid    = errors.New("auth: challenge invalid or expired")
	ErrTooManyCodeAttempts = errors.New("auth: too many code attempts")
)

var validate = validator.New()

type magicLinkRequest struct {
	Email string `validate:"required,email,max=320"`
}

type phoneCodeRequest struct {
	Phone string `validate:"required,e164"`
}

// IdentityResolver turns a verified sign-in into a member profile.
type IdentityResolver interface {
	ResolveSignIn(ctx context.Context, signIn users.SignIn) (club.Profile, error)
}

// PasswordlessConfig wires the challenge store with its delivery channels.
type PasswordlessConfig struct {
	Database     *gorm.DB
	Identities   IdentityResolver
	Mailer       MailSender
	SMS          SMSSender
	SiteURL      string
	MagicLinkTTL time.Duration
	PhoneCodeTTL time.Duration
	MaxAttempts  int
	BcryptCost   int
	Clock        func() time.Time
	IDProvider   club.IDProvider
	Logger       *zap.Logger
}

// PasswordlessService issues and redeems magic links and SMS codes.
type PasswordlessService struct {
	db           *gorm.DB
	identities   IdentityResolver
	mailer       MailSender
	sms          SMSSender
	siteURL      string
	magicLinkTTL time.Duration
	phoneCodeTTL time.Duration
	maxAttempts  int
	bcryptCost   int
	clock        func() time.Time
	idProvider   club.IDProvider
	logger       *zap.Logger
}

// NewPasswordlessService validates the configuration and applies defaults.
func NewPasswordlessService(cfg PasswordlessConfig) (*PasswordlessService, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("passwordless: database connection required")
	}
	if cfg.Identities == nil {
		return nil, fmt.Errorf("passwordless: identity resolver required")
	}
	service := &PasswordlessService{
		db:           cfg.Database,
		identities:   cfg.Identities,
		mailer:       cfg.Mailer,
		sms:          cfg.SMS,
		siteURL:      strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/"),
		magicLinkTTL: cfg.MagicLinkTTL,
		phoneCodeTTL: cfg.PhoneCodeTTL,
		maxAttempts:  cfg.MaxAttempts,
		bcryptCost:   cfg.BcryptCost,
		clock:        cfg.Clock,
		idProvider:   cfg.IDProvider,
		logger:       cfg.Logger,
	}
	if service.logger == nil {
		service.logger = zap.NewNop()
	}
	if service.mailer == nil {
		service.mailer = LogMailer{Logger: service.logger}
	}
	if service.sms == nil {
		service.sms = LogSMSSender{Logger: service.logger}
	}
	if service.magicLinkTTL <= 0 {
		service.magicLinkTTL = defaultMagicLinkTTL
	}
	if service.phoneCodeTTL <= 0 {
		service.phoneCodeTTL = defaultPhoneCodeTTL
	}
	if service.maxAttempts <= 0 {
		service.maxAttempts = defaultMaxCodeAttempt
	}
	if service.bcryptCost == 0 {
		service.bcryptCost = bcrypt.DefaultCost
	}
	if service.clock == nil {
		service.clock = time.Now
	}
	if service.idProvider == nil {
		service.idProvider = club.NewUUIDProvider()
	}
	return service, nil
}

// StartMagicLink stores a single-use token for the address and mails the callback link.
// A blank display name falls back to the local part of the address.
func (s *PasswordlessService) StartMagicLink(ctx context.Context, email, displayName string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return club.NewServiceError(opStartMagicLink, "email_required", club.KindValidation, "Email is required", ErrEmailRequired)
	}
	if err := validate.Struct(magicLinkRequest{Email: email}); err != nil {
		return club.NewServiceError(opStartMagicLink, "invalid_email", club.KindValidation, "Invalid email address", fmt.Errorf("%w: %v", ErrInvalidEmail, err))
	}
	effectiveName := strings.TrimSpace(displayName)
	if effectiveName == "" {
		effectiveName = strings.SplitN(email, "@", 2)[0]
	}

	token, err := randomToken()
	if err != nil {
		return s.fail(opStartMagicLink, "token_generation_failed", club.KindUpstream, "Failed to send magic link", err)
	}
	if err := s.storeChallenge(ctx, ChannelEmail, email, hashToken(token), effectiveName, s.magicLinkTTL); err != nil {
		return s.fail(opStartMagicLink, "persist_failed", club.KindUpstream, "Failed to send magic link", err)
	}

	link := fmt.Sprintf("%s/auth/callback?token=%s", s.siteURL, url.QueryEscape(token))
	if err := s.mailer.SendMagicLink(ctx, email, effectiveName, link, s.magicLinkTTL); err != nil {
		return s.fail(opStartMagicLink, "delivery_failed", club.KindUpstream, "Failed to send magic link", err)
	}
	return nil
}

// CompleteMagicLink consumes a magic link token and returns the signed-in profile.
func (s *PasswordlessService) CompleteMagicLink(ctx context.Context, token string) (club.Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return club.Profile{}, club.NewServiceError(opCompleteMagicLink, "invalid_link", club.KindUnauthenticated, "Invalid or expired link", ErrChallengeInvalid)
	}

	var challenge LoginChallenge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("channel = ? AND secret_hash = ?", ChannelEmail, hashToken(token)).
			Take(&challenge).Error
		if lookupErr != nil {
			return lookupErr
		}
		now := s.clock().UTC()
		if !challenge.pending(now) {
			return ErrChallengeInvalid
		}
		return tx.Model(&LoginChallenge{}).Where("id = ?", challenge.ID).Update("consumed_at", now).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrChallengeInvalid) {
		return club.Profile{}, club.NewServiceError(opCompleteMagicLink, "invalid_link", club.KindUnauthenticated, "Invalid or expired link", ErrChallengeInvalid)
	}
	if err != nil {
		return club.Profile{}, s.fail(opCompleteMagicLink, "consume_failed", club.KindUpstream, "Failed to sign in", err)
	}

	return s.identities.ResolveSignIn(ctx, users.SignIn{
		Provider:    users.ProviderEmail,
		Subject:     challenge.Destination,
		DisplayName: challenge.DisplayName,
	})
}

// StartPhoneCode normalizes the phone number, stores a hashed six digit code and
// texts it. Earlier pending codes for the same number stop working.
func (s *PasswordlessService) StartPhoneCode(ctx context.Context, phone, displayName string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", club.NewServiceError(opStartPhoneCode, "phone_required", club.KindValidation, "Phone number is required", ErrPhoneRequired)
	}
	normalized := NormalizePhone(phone)
	if err := validate.Struct(phoneCodeRequest{Phone: normalized}); err != nil {
		return "", club.NewServiceError(opStartPhoneCode, "invalid_phone", club.KindValidation, "Invalid phone number", fmt.Errorf("%w: %v", ErrInvalidPhone, err))
	}
	effectiveName := strings.TrimSpace(displayName)
	if effectiveName == "" {
		effectiveName = normalized
	}

	code, err := randomCode()
	if err != nil {
		return "", s.fail(opStartPhoneCode, "code_generation_failed", club.KindUpstream, "Failed to send code", err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
	if err != nil {
		return "", s.fail(opStartPhoneCode, "hash_failed", club.KindUpstream, "Failed to send code", err)
	}
	if err := s.storeChallenge(ctx, ChannelSMS, normalized, string(hashed), effectiveName, s.phoneCodeTTL); err != nil {
		return "", s.fail(opStartPhoneCode, "persist_failed", club.KindUpstream, "Failed to send code", err)
	}
	s.logger.Info("sending sms code", zap.String("phone", normalized))
	if err := s.sms.SendCode(ctx, normalized, code); err != nil {
		return "", s.fail(opStartPhoneCode, "delivery_failed", club.KindUpstream, "Failed to send code", err)
	}
	return normalized, nil
}

// VerifyPhoneCode checks the code against the newest pending challenge for the number.
// Each wrong guess counts against the attempt limit.
func (s *PasswordlessService) VerifyPhoneCode(ctx context.Context, phone, code string) (club.Profile, error) {
	code = strings.TrimSpace(code)
	if strings.TrimSpace(phone) == "" || code == "" {
		return club.Profile{}, club.NewServiceError(opVerifyPhoneCode, "phone_code_required", club.KindValidation, "Phone and code are required", ErrPhoneCodeRequired)
	}
	normalized := NormalizePhone(phone)

	var (
		challenge LoginChallenge
		outcome   error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("channel = ? AND destination = ? AND consumed_at IS NULL", ChannelSMS, normalized).
			Order("created_at DESC").
			Take(&challenge).Error
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			outcome = ErrChallengeInvalid
			return nil
		}
		if lookupErr != nil {
			return lookupErr
		}
		now := s.clock().UTC()
		if !challenge.pending(now) {
			outcome = ErrChallengeInvalid
			return nil
		}
		if challenge.Attempts >= s.maxAttempts {
			outcome = ErrTooManyCodeAttempts
			return nil
		}
		if bcrypt.CompareHashAndPassword([]byte(challenge.SecretHash), []byte(code)) != nil {
			outcome = ErrChallengeInvalid
			return tx.Model(&LoginChallenge{}).
				Where("id = ?", challenge.ID).
				Update("attempts", gorm.Expr("attempts + 1")).Error
		}
		return tx.Model(&LoginChallenge{}).Where("id = ?", challenge.ID).Update("consumed_at", now).Error
	})
	if err != nil {
		return club.Profile{}, s.fail(opVerifyPhoneCode, "consume_failed", club.KindUpstream, "Failed to sign in", err)
	}
	switch {
	case errors.Is(outcome, ErrTooManyCodeAttempts):
		return club.Profile{}, club.NewServiceError(opVerifyPhoneCode, "too_many_attempts", club.KindUnauthenticated, "Too many attempts, request a new code", outcome)
	case outcome != nil:
		return club.Profile{}, club.NewServiceError(opVerifyPhoneCode, "invalid_code", club.KindUnauthenticated, "Invalid or expired code", outcome)
	}

	return s.identities.ResolveSignIn(ctx, users.SignIn{
		Provider:    users.ProviderPhone,
		Subject:     challenge.Destination,
		DisplayName: challenge.DisplayName,
	})
}

// PurgeExpired removes consumed and expired challenges and reports how many rows went away.
func (s *PasswordlessService) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("consumed_at IS NOT NULL OR expires_at < ?", s.clock().UTC()).
		Delete(&LoginChallenge{})
	if result.Error != nil {
		return 0, s.fail(opPurgeChallenges, "delete_failed", club.KindUpstream, "", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PasswordlessService) storeChallenge(ctx context.Context, channel Channel, destination, secretHash, displayName string, ttl time.Duration) error {
	id, err := s.idProvider.NewID()
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		supersede := tx.Model(&LoginChallenge{}).
			Where("channel = ? AND destination = ? AND consumed_at IS NULL", channel, destination).
			Update("consumed_at", now)
		if supersede.Error != nil {
			return supersede.Error
		}
		return tx.Create(&LoginChallenge{
			ID:          id,
			Channel:     channel,
			Destination: destination,
			SecretHash:  secretHash,
			DisplayName: displayName,
			ExpiresAt:   now.Add(ttl),
			CreatedAt:   now,
		}).Error
	})
}

func (s *PasswordlessService) fail(operation, reason string, kind club.ErrorKind, message string, err error) error {
	s.logger.Error("auth service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err))
	return club.NewServiceError(operation, reason, kind, message, err)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	buffer := make([]byte, magicLinkTokenBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}

func randomCode() (string, error) {
	value, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", value.Int64()), nil
}
