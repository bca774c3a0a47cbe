package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/movieclub/internal/auth"
	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	"github.com/MarcoPoloResearchLab/movieclub/internal/database"
	"github.com/MarcoPoloResearchLab/movieclub/internal/tmdb"
	"github.com/MarcoPoloResearchLab/movieclub/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSigningSecret = "router-test-secret"

type capturingSMS struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *capturingSMS) SendCode(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[phone] = code
	return nil
}

func (s *capturingSMS) code(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

type capturingMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *capturingMailer) SendMagicLink(_ context.Context, _, _ string, link string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

type testHarness struct {
	handler  http.Handler
	club     *club.Service
	users    *users.Service
	tokens   *auth.TokenIssuer
	sms      *capturingSMS
	mailer   *capturingMailer
	realtime *RealtimeDispatcher
}

type harnessOption func(*tmdb.ClientConfig)

func newTestHarness(t *testing.T, options ...harnessOption) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Options{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "router.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	clubService, err := club.NewService(club.ServiceConfig{
		Database:   db,
		IDProvider: club.NewUUIDProvider(),
		Notifier:   realtime,
	})
	if err != nil {
		t.Fatalf("failed to create club service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create user service: %v", err)
	}
	sms := &capturingSMS{}
	mailer := &capturingMailer{}
	passwordless, err := auth.NewPasswordlessService(auth.PasswordlessConfig{
		Database:   db,
		Identities: userService,
		Mailer:     mailer,
		SMS:        sms,
		SiteURL:    "https://club.example.com",
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to create passwordless service: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    "movieclub_session",
	})
	if err != nil {
		t.Fatalf("failed to create session validator: %v", err)
	}
	searchConfig := tmdb.ClientConfig{}
	for _, option := range options {
		option(&searchConfig)
	}

	handler, err := NewHTTPHandler(Dependencies{
		ClubService:       clubService,
		UserService:       userService,
		Passwordless:      passwordless,
		TokenIssuer:       tokens,
		SessionValidator:  sessions,
		SearchClient:      tmdb.NewClient(searchConfig),
		Realtime:          realtime,
		Logger:            zap.NewNop(),
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &testHarness{
		handler:  handler,
		club:     clubService,
		users:    userService,
		tokens:   tokens,
		sms:      sms,
		mailer:   mailer,
		realtime: realtime,
	}
}

// signIn creates a member through the identity service and returns a session cookie for it.
func (h *testHarness) signIn(t *testing.T, email, displayName string) (*http.Cookie, club.Profile) {
	t.Helper()
	profile, err := h.users.ResolveSignIn(context.Background(), users.SignIn{
		Provider:    users.ProviderEmail,
		Subject:     email,
		DisplayName: displayName,
	})
	if err != nil {
		t.Fatalf("failed to resolve sign in: %v", err)
	}
	token, _, err := h.tokens.IssueSessionToken(profile.ID, users.ProviderEmail)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	return &http.Cookie{Name: "movieclub_session", Value: token}, profile
}

func (h *testHarness) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type listMoviesResponse struct {
	Movies []moviePayload `json:"movies"`
}

type addMovieResponse struct {
	Success bool         `json:"success"`
	Movie   moviePayload `json:"movie"`
}
