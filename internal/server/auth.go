package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type magicLinkRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type phoneOTPRequest struct {
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
}

type phoneVerifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

func (h *httpHandler) handleMagicLink(c *gin.Context) {
	var request magicLinkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "")
		return
	}
	if err := h.passwordless.StartMagicLink(c.Request.Context(), request.Email, request.DisplayName); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleMagicLinkCallback(c *gin.Context) {
	profile, err := h.passwordless.CompleteMagicLink(c.Request.Context(), c.Query("token"))
	if err != nil {
		message := "Something went wrong"
		var serviceErr *club.ServiceError
		if errors.As(err, &serviceErr) {
			message = serviceErr.Message()
		}
		c.Redirect(http.StatusSeeOther, "/login?error="+url.QueryEscape(message))
		return
	}
	if !h.startSession(c, profile, "email") {
		c.Redirect(http.StatusSeeOther, "/login?error="+url.QueryEscape("Failed to sign in"))
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *httpHandler) handlePhoneOTP(c *gin.Context) {
	var request phoneOTPRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "")
		return
	}
	normalized, err := h.passwordless.StartPhoneCode(c.Request.Context(), request.Phone, request.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "phone": normalized})
}

func (h *httpHandler) handlePhoneVerify(c *gin.Context) {
	var request phoneVerifyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "")
		return
	}
	profile, err := h.passwordless.VerifyPhoneCode(c.Request.Context(), request.Phone, request.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.startSession(c, profile, "phone") {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in", "code": "auth.session.issue_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "profile": toProfilePayload(profile)})
}

func (h *httpHandler) handleSignOut(c *gin.Context) {
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleGetMe(c *gin.Context) {
	profile, err := h.users.GetProfile(c.Request.Context(), h.viewer(c).UserID.String())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": toProfilePayload(profile)})
}

func (h *httpHandler) handleUpdateMe(c *gin.Context) {
	var request updateProfileRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "")
		return
	}
	profile, err := h.users.UpdateDisplayName(c.Request.Context(), h.viewer(c), request.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if h.realtime != nil {
		h.realtime.MoviesChanged(c.Request.Context(), profile.ID)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "profile": toProfilePayload(profile)})
}

func (h *httpHandler) startSession(c *gin.Context, profile club.Profile, provider string) bool {
	token, _, err := h.tokens.IssueSessionToken(profile.ID, provider)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("user_id", profile.ID), zap.Error(err))
		return false
	}
	h.setSessionCookie(c, token)
	return true
}
