package passkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/stackmelt/passkey-auth/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ceremonyTTL bounds how long a ticket may stay pending before the recorded
// challenge is rejected at completion time.
const ceremonyTTL = 5 * time.Minute

// Verifier is the WebAuthn challenge/verification collaborator. It is
// satisfied by *webauthn.WebAuthn and stubbed in tests.
type Verifier interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// Manager owns the passkey ceremony lifecycle: challenge tickets, their
// single-use consumption, and the active credential records they produce.
// All ceremony state lives in the database; the manager itself is stateless.
type Manager struct {
	db       *gorm.DB
	verifier Verifier
	rpID     string
}

// NewManager constructs a ceremony manager.
func NewManager(conn *gorm.DB, verifier Verifier, rpID string) *Manager {
	return &Manager{db: conn, verifier: verifier, rpID: rpID}
}

// RegistrationChallenge is the outcome of starting a registration ceremony.
type RegistrationChallenge struct {
	TicketID string
	UserID   uint64
	Options  *protocol.CredentialCreation
}

// AuthenticationChallenge is the outcome of starting an authentication ceremony.
type AuthenticationChallenge struct {
	TicketID string
	UserID   uint64
	Options  *protocol.CredentialAssertion
}

// BeginRegistration starts a registration ceremony for the account matching
// email. Already-registered authenticators are excluded so the same device
// cannot be bound twice.
func (m *Manager) BeginRegistration(ctx context.Context, email string) (*RegistrationChallenge, error) {
	user, err := m.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	records, err := m.activeCredentials(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	ceremonyUser := newCeremonyUser(user, records)
	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementRequired,
			UserVerification:        protocol.VerificationRequired,
		}),
	}
	if excluded := ceremonyUser.WebAuthnCredentials(); len(excluded) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(excluded).CredentialDescriptors()))
	}

	creation, session, err := m.verifier.BeginRegistration(ceremonyUser, options...)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	if creation == nil || session == nil || session.Challenge == "" {
		return nil, ErrChallengeGenerationFailed
	}

	ticket, err := m.createTicket(ctx, user.ID, models.CeremonyRegistration, session.Challenge)
	if err != nil {
		return nil, err
	}

	return &RegistrationChallenge{TicketID: ticket.ID, UserID: user.ID, Options: creation}, nil
}

// CompleteRegistration verifies the attestation against the ticket's stored
// challenge and promotes it into an active credential. The ticket is consumed
// regardless of the verification outcome; a failed registration requires a
// fresh ceremony.
func (m *Manager) CompleteRegistration(ctx context.Context, ticketID string, userID uint64, response *protocol.ParsedCredentialCreationData) error {
	ticket, err := m.loadOwnedTicket(ctx, ticketID, userID, models.CeremonyRegistration)
	if err != nil {
		return err
	}
	if err := m.consumeTicket(ctx, ticket.ID); err != nil {
		return err
	}

	user, err := m.findUserByID(ctx, userID)
	if err != nil {
		return err
	}

	session := webauthn.SessionData{
		Challenge:        ticket.Challenge,
		RelyingPartyID:   m.rpID,
		UserID:           newCeremonyUser(user, nil).WebAuthnID(),
		Expires:          ticket.ExpiresAt,
		UserVerification: protocol.VerificationRequired,
	}

	credential, err := m.verifier.CreateCredential(newCeremonyUser(user, nil), session, response)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRegistrationVerificationFailed, err)
	}

	transports, _ := json.Marshal(credential.Transport)
	record := models.PasskeyCredential{
		UserID:       user.ID,
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		SignCount:    credential.Authenticator.SignCount,
		Transports:   datatypes.JSON(transports),
		DeviceType:   deviceTypeFromFlags(credential.Flags),
		BackedUp:     credential.Flags.BackupState,
	}
	if errCreate := m.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		return fmt.Errorf("store credential: %w", errCreate)
	}
	return nil
}

// BeginAuthentication starts an authentication ceremony for the account
// matching email, allowing only its registered credentials.
func (m *Manager) BeginAuthentication(ctx context.Context, email string) (*AuthenticationChallenge, error) {
	user, err := m.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	records, err := m.activeCredentials(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRegisteredCredentials
	}

	ceremonyUser := newCeremonyUser(user, records)
	assertion, session, err := m.verifier.BeginLogin(ceremonyUser, webauthn.WithUserVerification(protocol.VerificationRequired))
	if err != nil {
		return nil, fmt.Errorf("begin authentication: %w", err)
	}
	if assertion == nil || session == nil || session.Challenge == "" {
		return nil, ErrChallengeGenerationFailed
	}

	ticket, err := m.createTicket(ctx, user.ID, models.CeremonyAuthentication, session.Challenge)
	if err != nil {
		return nil, err
	}

	return &AuthenticationChallenge{TicketID: ticket.ID, UserID: user.ID, Options: assertion}, nil
}

// CompleteAuthentication consumes the ceremony ticket, verifies the assertion
// against the matching active credential, and advances its signature counter.
// The ticket is single-use: it is gone after this call whatever the outcome.
func (m *Manager) CompleteAuthentication(ctx context.Context, ticketID string, userID uint64, response *protocol.ParsedCredentialAssertionData) (*models.User, error) {
	ticket, err := m.loadOwnedTicket(ctx, ticketID, userID, models.CeremonyAuthentication)
	if err != nil {
		return nil, err
	}
	if err := m.consumeTicket(ctx, ticket.ID); err != nil {
		return nil, err
	}

	user, err := m.findUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var record models.PasskeyCredential
	errFind := m.db.WithContext(ctx).
		Where("user_id = ? AND credential_id = ?", userID, []byte(response.RawID)).
		First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNoMatchingCredential
		}
		return nil, fmt.Errorf("find credential: %w", errFind)
	}

	ceremonyUser := newCeremonyUser(user, []models.PasskeyCredential{record})
	session := webauthn.SessionData{
		Challenge:            ticket.Challenge,
		RelyingPartyID:       m.rpID,
		UserID:               ceremonyUser.WebAuthnID(),
		AllowedCredentialIDs: [][]byte{record.CredentialID},
		Expires:              ticket.ExpiresAt,
		UserVerification:     protocol.VerificationRequired,
	}

	credential, err := m.verifier.ValidateLogin(ceremonyUser, session, response)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAuthenticationVerificationFailed, err)
	}

	newCount := credential.Authenticator.SignCount
	if credential.Authenticator.CloneWarning || newCount < record.SignCount {
		return nil, ErrCounterRegression
	}

	res := m.db.WithContext(ctx).Model(&models.PasskeyCredential{}).
		Where("id = ? AND sign_count <= ?", record.ID, newCount).
		Updates(map[string]any{
			"sign_count": newCount,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update counter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrCounterRegression
	}

	return &user, nil
}

// Cancel removes a pending ceremony ticket. Cancellation is an expected
// outcome, not an error, and deleting an already-removed ticket is a no-op.
func (m *Manager) Cancel(ctx context.Context, ticketID string) error {
	if ticketID == "" {
		return nil
	}
	if err := m.db.WithContext(ctx).Delete(&models.PasskeyCeremony{}, "id = ?", ticketID).Error; err != nil {
		return fmt.Errorf("cancel ceremony: %w", err)
	}
	return nil
}

// ListCredentials returns the user's active credentials, oldest first.
func (m *Manager) ListCredentials(ctx context.Context, userID uint64) ([]models.PasskeyCredential, error) {
	var records []models.PasskeyCredential
	if err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return records, nil
}

func (m *Manager) findUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := m.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (m *Manager) findUserByID(ctx context.Context, id uint64) (models.User, error) {
	var user models.User
	err := m.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (m *Manager) activeCredentials(ctx context.Context, userID uint64) ([]models.PasskeyCredential, error) {
	var records []models.PasskeyCredential
	if err := m.db.WithContext(ctx).Where("user_id = ?", userID).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return records, nil
}

func (m *Manager) createTicket(ctx context.Context, userID uint64, kind, challenge string) (models.PasskeyCeremony, error) {
	ticket := models.PasskeyCeremony{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Challenge: challenge,
		ExpiresAt: time.Now().UTC().Add(ceremonyTTL),
	}
	if err := m.db.WithContext(ctx).Create(&ticket).Error; err != nil {
		return models.PasskeyCeremony{}, fmt.Errorf("store ceremony ticket: %w", err)
	}
	return ticket, nil
}

// loadOwnedTicket fetches a pending ticket and checks ownership, kind, and
// expiry. Absent, expired, and foreign tickets produce the same error so
// existence never leaks.
func (m *Manager) loadOwnedTicket(ctx context.Context, ticketID string, userID uint64, kind string) (models.PasskeyCeremony, error) {
	var ticket models.PasskeyCeremony
	err := m.db.WithContext(ctx).Where("id = ?", ticketID).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PasskeyCeremony{}, ErrCeremonyOwnershipMismatch
		}
		return models.PasskeyCeremony{}, fmt.Errorf("load ceremony ticket: %w", err)
	}
	if ticket.UserID != userID || ticket.Kind != kind {
		return models.PasskeyCeremony{}, ErrCeremonyOwnershipMismatch
	}
	if ticket.ExpiresAt.Before(time.Now().UTC()) {
		return models.PasskeyCeremony{}, ErrCeremonyOwnershipMismatch
	}
	return ticket, nil
}

// consumeTicket deletes the ticket, which must still exist: two completions
// racing on the same ceremony can only both pass the load, not the delete.
func (m *Manager) consumeTicket(ctx context.Context, ticketID string) error {
	res := m.db.WithContext(ctx).Delete(&models.PasskeyCeremony{}, "id = ?", ticketID)
	if res.Error != nil {
		return fmt.Errorf("consume ceremony ticket: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCeremonyOwnershipMismatch
	}
	return nil
}
