package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stackmelt/passkey-auth/internal/models"
	"github.com/stackmelt/passkey-auth/internal/passkey"
	"github.com/stackmelt/passkey-auth/internal/security"
	"gorm.io/gorm"
)

// UserView is the redacted account shape returned after authentication.
// Credential material never appears here.
type UserView struct {
	ID       uint64 `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Result is the unified session-issuance outcome both credential paths
// converge on.
type Result struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

// Service composes the credential verifier, the ceremony manager, and the
// session codec into the two top-level login flows.
type Service struct {
	db       *gorm.DB
	passkeys *passkey.Manager

	sessionSecret string
	sessionTTL    time.Duration
}

// NewService constructs the authentication orchestrator.
func NewService(conn *gorm.DB, passkeys *passkey.Manager, sessionSecret string, sessionTTL time.Duration) *Service {
	return &Service{db: conn, passkeys: passkeys, sessionSecret: sessionSecret, sessionTTL: sessionTTL}
}

// SessionTTL returns the lifetime of issued sessions.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Passkeys exposes the ceremony manager for the passkey endpoints.
func (s *Service) Passkeys() *passkey.Manager {
	return s.passkeys
}

// LoginByPassword authenticates with the password credential path. Unknown
// email and wrong password are indistinguishable in the returned error.
func (s *Service) LoginByPassword(ctx context.Context, email, password string) (*Result, error) {
	var user models.User
	errFind := s.db.WithContext(ctx).Preload("Auth").Where("email = ?", strings.TrimSpace(email)).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", errFind)
	}

	if user.Auth == nil || strings.TrimSpace(user.Auth.Password) == "" {
		return nil, ErrMissingPasswordHash
	}
	if !security.CheckPassword(user.Auth.Password, password) {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(user)
}

// LoginByPasskey completes an authentication ceremony and issues a session.
func (s *Service) LoginByPasskey(ctx context.Context, ticketID string, userID uint64, response *protocol.ParsedCredentialAssertionData) (*Result, error) {
	user, err := s.passkeys.CompleteAuthentication(ctx, ticketID, userID, response)
	if err != nil {
		return nil, err
	}
	return s.issueSession(*user)
}

// CurrentUser resolves a session token into the account it proves.
func (s *Service) CurrentUser(ctx context.Context, token string) (*UserView, error) {
	userID, ok := security.ValidateSession(s.sessionSecret, token)
	if !ok {
		return nil, security.ErrInvalidToken
	}

	var user models.User
	errFind := s.db.WithContext(ctx).First(&user, userID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", errFind)
	}

	view := redact(user)
	return &view, nil
}

func (s *Service) issueSession(user models.User) (*Result, error) {
	token, err := security.IssueSession(s.sessionSecret, user.ID, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &Result{Token: token, User: redact(user)}, nil
}

func redact(user models.User) UserView {
	return UserView{ID: user.ID, Email: user.Email, Username: user.Username}
}
