package security

import (
	"net/url"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stackmelt/passkey-auth/internal/config"
)

// NewWebAuthn builds the WebAuthn relying party from configuration. The RP ID
// falls back to the host of the first configured origin when unset.
func NewWebAuthn(rp config.RelyingPartyConfig) (*webauthn.WebAuthn, error) {
	rpID := strings.TrimSpace(rp.ID)
	if rpID == "" {
		rpID = deriveRPIDFromOrigins(rp.Origins)
	}
	return webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rp.Name,
		RPOrigins:     rp.Origins,
	})
}

// deriveRPIDFromOrigins extracts an RP ID from the configured origins.
func deriveRPIDFromOrigins(origins []string) string {
	for _, origin := range origins {
		if host := originHost(origin); host != "" {
			return host
		}
	}
	return ""
}

// originHost parses an origin string and returns its hostname.
func originHost(origin string) string {
	trimmed := strings.TrimSpace(origin)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimSpace(parsed.Hostname())
}
