package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stackmelt/passkey-auth/internal/auth"
	"github.com/stackmelt/passkey-auth/internal/util"
)

// AuthHandler handles password login and session endpoints.
type AuthHandler struct {
	svc    *auth.Service
	secure bool
}

// NewAuthHandler constructs an AuthHandler. secure controls the Secure flag
// on issued cookies and should be true in production.
func NewAuthHandler(svc *auth.Service, secure bool) *AuthHandler {
	return &AuthHandler{svc: svc, secure: secure}
}

// loginRequest defines the request body for password login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginByPassword authenticates with email and password and issues a session.
func (h *AuthHandler) LoginByPassword(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing email or password"})
		return
	}

	result, err := h.svc.LoginByPassword(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		case errors.Is(err, auth.ErrMissingPasswordHash):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "User's password is not found"})
		default:
			log.WithError(err).WithField("email", util.MaskEmail(body.Email)).Error("password login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	SetSessionCookie(c, result.Token, h.svc.SessionTTL(), h.secure)
	c.JSON(http.StatusOK, result)
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	ClearSessionCookie(c, h.secure)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// IsLoggedIn reports whether the request carries a valid session. An invalid
// or expired cookie is cleared rather than treated as an error.
func (h *AuthHandler) IsLoggedIn(c *gin.Context) {
	cookie, errCookie := c.Request.Cookie(SessionCookieName)
	if errCookie != nil || cookie.Value == "" {
		c.JSON(http.StatusOK, gin.H{"loggedIn": false})
		return
	}

	user, err := h.svc.CurrentUser(c.Request.Context(), cookie.Value)
	if err != nil {
		ClearSessionCookie(c, h.secure)
		c.JSON(http.StatusOK, gin.H{"loggedIn": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"loggedIn": true, "user": user})
}
