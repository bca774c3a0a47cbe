package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/movieclub/internal/auth"
	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	"github.com/MarcoPoloResearchLab/movieclub/internal/tmdb"
	"github.com/MarcoPoloResearchLab/movieclub/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "movieclub_user_id"

var (
	errMissingClubService    = errors.New("club service dependency required")
	errMissingUserService    = errors.New("user service dependency required")
	errMissingPasswordless   = errors.New("passwordless service dependency required")
	errMissingTokenIssuer    = errors.New("token issuer dependency required")
	errMissingSessionChecker = errors.New("session validator dependency required")
	errMissingSearchClient   = errors.New("search client dependency required")
)

// Dependencies wires the services behind the HTTP API.
type Dependencies struct {
	ClubService       *club.Service
	UserService       *users.Service
	Passwordless      *auth.PasswordlessService
	TokenIssuer       *auth.TokenIssuer
	SessionValidator  *auth.SessionValidator
	SearchClient      *tmdb.Client
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	AllowedOrigins    []string
	CookieSecure      bool
	HeartbeatInterval time.Duration
}

// NewHTTPHandler builds the gin engine serving the club API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.ClubService == nil:
		return nil, errMissingClubService
	case deps.UserService == nil:
		return nil, errMissingUserService
	case deps.Passwordless == nil:
		return nil, errMissingPasswordless
	case deps.TokenIssuer == nil:
		return nil, errMissingTokenIssuer
	case deps.SessionValidator == nil:
		return nil, errMissingSessionChecker
	case deps.SearchClient == nil:
		return nil, errMissingSearchClient
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		club:              deps.ClubService,
		users:             deps.UserService,
		passwordless:      deps.Passwordless,
		tokens:            deps.TokenIssuer,
		sessions:          deps.SessionValidator,
		search:            deps.SearchClient,
		realtime:          deps.Realtime,
		logger:            logger,
		cookieSecure:      deps.CookieSecure,
		heartbeatInterval: heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)

	router.POST("/auth/magic-link", handler.handleMagicLink)
	router.GET("/auth/callback", handler.handleMagicLinkCallback)
	router.POST("/auth/phone/otp", handler.handlePhoneOTP)
	router.POST("/auth/phone/verify", handler.handlePhoneVerify)
	router.POST("/auth/sign-out", handler.handleSignOut)

	router.GET("/api/tmdb", handler.handleSearch)
	router.GET("/api/tmdb/suggestions", handler.handleSuggestions)

	protected := router.Group("/")
	protected.Use(handler.requireSession)
	protected.GET("/me", handler.handleGetMe)
	protected.PATCH("/me", handler.handleUpdateMe)
	protected.GET("/profiles", handler.handleListProfiles)
	protected.GET("/movies", handler.handleListMovies)
	protected.POST("/movies", handler.handleAddMovie)
	protected.DELETE("/movies/:id", handler.handleDeleteMovie)
	protected.POST("/movies/:id/current", handler.handleSetCurrent)
	protected.DELETE("/movies/:id/current", handler.handleClearCurrent)
	protected.POST("/movies/:id/review", handler.handleSubmitReview)
	protected.POST("/movies/:id/watched", handler.handleToggleWatched)
	protected.PUT("/movies/:id/score", handler.handleUpdateScore)
	protected.PUT("/movies/:id/review", handler.handleUpdateReview)
	protected.PATCH("/movies/:id/rating", handler.handlePatchRating)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	club              *club.Service
	users             *users.Service
	passwordless      *auth.PasswordlessService
	tokens            *auth.TokenIssuer
	sessions          *auth.SessionValidator
	search            *tmdb.Client
	realtime          *RealtimeDispatcher
	logger            *zap.Logger
	cookieSecure      bool
	heartbeatInterval time.Duration
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Accept", "Cache-Control", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		config.AllowOrigins = allowedOrigins
	} else {
		config.AllowOriginFunc = func(string) bool { return true }
	}
	return cors.New(config)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) requireSession(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if !errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated", "code": "auth.session.invalid"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Next()
}

func (h *httpHandler) viewer(c *gin.Context) club.Viewer {
	viewer, err := club.NewViewer(c.GetString(userIDContextKey))
	if err != nil {
		return club.Viewer{}
	}
	return viewer
}

func (h *httpHandler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), token, int(h.tokens.TTL().Seconds()), "/", "", h.cookieSecure, true)
}

func (h *httpHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", h.cookieSecure, true)
}

func statusForKind(kind club.ErrorKind) int {
	switch kind {
	case club.KindUnauthenticated:
		return http.StatusUnauthorized
	case club.KindValidation:
		return http.StatusBadRequest
	case club.KindNotFound:
		return http.StatusNotFound
	case club.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the {"error","code"} envelope for a failed operation.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	var serviceErr *club.ServiceError
	if errors.As(err, &serviceErr) {
		c.JSON(statusForKind(serviceErr.Kind()), gin.H{"error": serviceErr.Message(), "code": serviceErr.Code()})
		return
	}
	h.logger.Error("unclassified request failure", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong", "code": "internal"})
}

func respondInvalidRequest(c *gin.Context, message string) {
	if strings.TrimSpace(message) == "" {
		message = "Invalid request"
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": "invalid_request"})
}
