package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	log "github.com/sirupsen/logrus"
	"github.com/stackmelt/passkey-auth/internal/auth"
	"github.com/stackmelt/passkey-auth/internal/passkey"
	"github.com/stackmelt/passkey-auth/internal/util"
)

// PasskeyHandler handles the passkey ceremony endpoints.
type PasskeyHandler struct {
	svc    *auth.Service
	secure bool
}

// NewPasskeyHandler constructs a PasskeyHandler.
func NewPasskeyHandler(svc *auth.Service, secure bool) *PasskeyHandler {
	return &PasskeyHandler{svc: svc, secure: secure}
}

// challengeRequest identifies the account starting a ceremony.
type challengeRequest struct {
	Email string `json:"email"`
}

// GenerateRegistrationChallenge starts a passkey registration ceremony.
func (h *PasskeyHandler) GenerateRegistrationChallenge(c *gin.Context) {
	var body challengeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing user identifier"})
		return
	}

	challenge, err := h.svc.Passkeys().BeginRegistration(c.Request.Context(), body.Email)
	if err != nil {
		switch {
		case errors.Is(err, passkey.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, passkey.ErrChallengeGenerationFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate registration options"})
		default:
			log.WithError(err).WithField("email", util.MaskEmail(body.Email)).Error("begin passkey registration failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"passKeyId": challenge.TicketID,
		"userId":    challenge.UserID,
		"options":   challenge.Options,
	})
}

// verifyRegistrationRequest carries the attestation completing registration.
// A non-empty Error means the client cancelled or failed the browser dialog.
type verifyRegistrationRequest struct {
	PassKeyID           string          `json:"passKeyId"`
	UserID              uint64          `json:"userId"`
	AttestationResponse json.RawMessage `json:"attestationResponse"`
	Error               string          `json:"error"`
}

// VerifyRegistration completes a passkey registration ceremony.
func (h *PasskeyHandler) VerifyRegistration(c *gin.Context) {
	var body verifyRegistrationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId or attestationResponse"})
		return
	}

	if body.Error != "" {
		log.WithField("reason", body.Error).Info("passkey registration cancelled")
		if errCancel := h.svc.Passkeys().Cancel(c.Request.Context(), body.PassKeyID); errCancel != nil {
			log.WithError(errCancel).Warn("cancel registration ticket failed")
		}
		c.JSON(http.StatusOK, gin.H{"error": "Passkey registration was cancelled or failed"})
		return
	}

	if body.PassKeyID == "" || body.UserID == 0 || len(body.AttestationResponse) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId or attestationResponse"})
		return
	}

	parsed, errParse := protocol.ParseCredentialCreationResponseBytes(body.AttestationResponse)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Passkey registration verification failed"})
		return
	}

	err := h.svc.Passkeys().CompleteRegistration(c.Request.Context(), body.PassKeyID, body.UserID, parsed)
	if err != nil {
		switch {
		case errors.Is(err, passkey.ErrCeremonyOwnershipMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid PassKey record"})
		case errors.Is(err, passkey.ErrRegistrationVerificationFailed):
			log.WithError(err).WithField("ticket", body.PassKeyID).Warn("passkey registration verification failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Passkey registration verification failed"})
		default:
			log.WithError(err).WithField("ticket", body.PassKeyID).Error("complete passkey registration failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GenerateAuthenticationChallenge starts a passkey authentication ceremony.
func (h *PasskeyHandler) GenerateAuthenticationChallenge(c *gin.Context) {
	var body challengeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing user identifier"})
		return
	}

	challenge, err := h.svc.Passkeys().BeginAuthentication(c.Request.Context(), body.Email)
	if err != nil {
		switch {
		case errors.Is(err, passkey.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, passkey.ErrNoRegisteredCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No registered passkeys found for this user"})
		case errors.Is(err, passkey.ErrChallengeGenerationFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication options"})
		default:
			log.WithError(err).WithField("email", util.MaskEmail(body.Email)).Error("begin passkey authentication failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"passKeyId": challenge.TicketID,
		"userId":    challenge.UserID,
		"options":   challenge.Options,
	})
}

// verifyAuthenticationRequest carries the assertion completing authentication.
type verifyAuthenticationRequest struct {
	PassKeyID         string          `json:"passKeyId"`
	UserID            uint64          `json:"userId"`
	AssertionResponse json.RawMessage `json:"assertionResponse"`
	Error             string          `json:"error"`
}

// VerifyAuthentication completes a passkey authentication ceremony and issues
// a session on success.
func (h *PasskeyHandler) VerifyAuthentication(c *gin.Context) {
	var body verifyAuthenticationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId or assertionResponse"})
		return
	}

	if body.Error != "" {
		log.WithField("reason", body.Error).Info("passkey authentication cancelled")
		if errCancel := h.svc.Passkeys().Cancel(c.Request.Context(), body.PassKeyID); errCancel != nil {
			log.WithError(errCancel).Warn("cancel authentication ticket failed")
		}
		c.JSON(http.StatusOK, gin.H{"error": "Passkey authentication was cancelled or failed"})
		return
	}

	if body.PassKeyID == "" || body.UserID == 0 || len(body.AssertionResponse) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing userId or assertionResponse"})
		return
	}

	parsed, errParse := protocol.ParseCredentialRequestResponseBytes(body.AssertionResponse)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Passkey authentication verification failed"})
		return
	}

	result, err := h.svc.LoginByPasskey(c.Request.Context(), body.PassKeyID, body.UserID, parsed)
	if err != nil {
		switch {
		case errors.Is(err, passkey.ErrCeremonyOwnershipMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid PassKey record"})
		case errors.Is(err, passkey.ErrNoMatchingCredential):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No registered passkey found matching the assertion"})
		case errors.Is(err, passkey.ErrCounterRegression):
			log.WithField("ticket", body.PassKeyID).Warn("passkey counter regression detected")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Passkey authentication verification failed"})
		case errors.Is(err, passkey.ErrAuthenticationVerificationFailed):
			log.WithError(err).WithField("ticket", body.PassKeyID).Warn("passkey authentication verification failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Passkey authentication verification failed"})
		default:
			log.WithError(err).WithField("ticket", body.PassKeyID).Error("complete passkey authentication failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	SetSessionCookie(c, result.Token, h.svc.SessionTTL(), h.secure)
	c.JSON(http.StatusOK, result)
}

// passkeyView is the listing shape for registered credentials. Key material
// is never exposed.
type passkeyView struct {
	ID         uint64 `json:"id"`
	CreatedAt  string `json:"createdAt"`
	LastUsedAt string `json:"lastUsedAt"`
}

// List returns the authenticated user's registered passkeys.
func (h *PasskeyHandler) List(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	records, err := h.svc.Passkeys().ListCredentials(c.Request.Context(), userID)
	if err != nil {
		log.WithError(err).WithField("user", userID).Error("list passkeys failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	out := make([]passkeyView, 0, len(records))
	for _, record := range records {
		out = append(out, passkeyView{
			ID:         record.ID,
			CreatedAt:  record.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			LastUsedAt: record.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
	c.JSON(http.StatusOK, out)
}
