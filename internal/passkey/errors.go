package passkey

import "errors"

// Ceremony failure kinds surfaced to callers. Anything else returned by the
// manager is an internal store or collaborator failure and must not be
// shown to clients verbatim.
var (
	// ErrUserNotFound indicates the email resolved to no account.
	ErrUserNotFound = errors.New("user not found")
	// ErrChallengeGenerationFailed indicates the relying party produced no challenge.
	ErrChallengeGenerationFailed = errors.New("challenge generation failed")
	// ErrCeremonyOwnershipMismatch indicates the ticket is absent, expired,
	// already consumed, or owned by a different user. The cases are not
	// distinguished so record existence is never leaked.
	ErrCeremonyOwnershipMismatch = errors.New("invalid ceremony record")
	// ErrNoRegisteredCredentials indicates the user has no active passkeys.
	ErrNoRegisteredCredentials = errors.New("no registered passkeys")
	// ErrNoMatchingCredential indicates the assertion names an unknown credential.
	ErrNoMatchingCredential = errors.New("no matching passkey")
	// ErrRegistrationVerificationFailed indicates attestation verification failed.
	ErrRegistrationVerificationFailed = errors.New("passkey registration verification failed")
	// ErrAuthenticationVerificationFailed indicates assertion verification failed.
	ErrAuthenticationVerificationFailed = errors.New("passkey authentication verification failed")
	// ErrCounterRegression indicates the signature counter went backwards,
	// which suggests a cloned authenticator.
	ErrCounterRegression = errors.New("signature counter regression")
)
