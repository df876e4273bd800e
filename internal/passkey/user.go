package passkey

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stackmelt/passkey-auth/internal/models"
)

// Device type values stored on credentials, matching WebAuthn backup
// eligibility: a backup-eligible credential can live on multiple devices.
const (
	deviceTypeSingle = "singleDevice"
	deviceTypeMulti  = "multiDevice"
)

// ceremonyUser adapts a user and their stored credentials to the WebAuthn
// user interface.
type ceremonyUser struct {
	user        models.User
	credentials []webauthn.Credential
}

// WebAuthnID returns the user ID as a fixed-width byte slice.
func (u ceremonyUser) WebAuthnID() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u.user.ID)
	return buf
}

// WebAuthnName returns the login identifier presented to the authenticator.
func (u ceremonyUser) WebAuthnName() string {
	return u.user.Email
}

// WebAuthnDisplayName returns the user-facing display name.
func (u ceremonyUser) WebAuthnDisplayName() string {
	return fmt.Sprintf("User: %s", u.user.Username)
}

// WebAuthnCredentials returns the registered credentials for the user.
func (u ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// newCeremonyUser builds a WebAuthn adapter from a user and credential rows.
func newCeremonyUser(user models.User, records []models.PasskeyCredential) ceremonyUser {
	out := ceremonyUser{user: user}
	for _, record := range records {
		out.credentials = append(out.credentials, credentialFromRecord(record))
	}
	return out
}

// credentialFromRecord converts a stored credential row into the library shape.
func credentialFromRecord(record models.PasskeyCredential) webauthn.Credential {
	var transports []protocol.AuthenticatorTransport
	if len(record.Transports) > 0 {
		_ = json.Unmarshal(record.Transports, &transports)
	}
	return webauthn.Credential{
		ID:        record.CredentialID,
		PublicKey: record.PublicKey,
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: record.DeviceType == deviceTypeMulti,
			BackupState:    record.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: record.SignCount,
		},
	}
}

// deviceTypeFromFlags maps backup eligibility onto the stored device type.
func deviceTypeFromFlags(flags webauthn.CredentialFlags) string {
	if flags.BackupEligible {
		return deviceTypeMulti
	}
	return deviceTypeSingle
}
