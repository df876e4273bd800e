package models

import (
	"time"

	"gorm.io/datatypes"
)

// Ceremony kinds stored on PasskeyCeremony rows.
const (
	// CeremonyRegistration marks a ticket for a registration ceremony.
	CeremonyRegistration = "registration"
	// CeremonyAuthentication marks a ticket for an authentication ceremony.
	CeremonyAuthentication = "authentication"
)

// PasskeyCredential is a registered WebAuthn credential bound to a user.
// UpdatedAt doubles as the last-used timestamp for active credentials.
type PasskeyCredential struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"` // Owning user ID.

	CredentialID []byte `gorm:"type:bytea;not null;uniqueIndex"` // WebAuthn credential ID.
	PublicKey    []byte `gorm:"type:bytea;not null"`             // WebAuthn public key bytes.
	SignCount    uint32 `gorm:"not null;default:0"`              // WebAuthn signature counter.

	Transports datatypes.JSON `gorm:"type:jsonb"` // Transport hints, e.g. ["internal","usb"].
	DeviceType string         `gorm:"type:text"`  // Authenticator device type.
	BackedUp   bool           `gorm:"not null;default:false"` // Authenticator backup state.

	AuthenticatorName string `gorm:"type:text"` // Optional user-facing label.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update / last used timestamp.
}

// PasskeyCeremony is an ephemeral ceremony ticket carrying a single-use
// challenge. Rows exist only while a registration or authentication ceremony
// is in flight and are deleted when it concludes, success or failure.
type PasskeyCeremony struct {
	ID string `gorm:"type:text;primaryKey"` // Ticket UUID.

	UserID uint64 `gorm:"not null;index"` // Owning user ID.

	Kind      string `gorm:"type:text;not null"` // registration or authentication.
	Challenge string `gorm:"type:text;not null"` // Single-use server challenge.

	ExpiresAt time.Time `gorm:"not null"`                // Ceremony deadline.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
