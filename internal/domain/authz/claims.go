// Package authz decides whether a caller may invoke a capability, based only on
// the claims its credential carries.
package authz

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Claim vocabulary carried by the caller's credential
const (
	// ClaimActive marks an enabled account; only the literal ActiveValue grants access
	ClaimActive = "Ativo"
	// ClaimModule is repeated once per granted module
	ClaimModule = "Modulo"
	// ActiveValue is compared by string equality, not parsed as a boolean
	ActiveValue = "True"
)

// Claim is a typed key/value fact about the caller, asserted by the credential issuer
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Principal is the calling identity: an authentication flag plus an ordered multiset of claims
type Principal struct {
	Authenticated bool
	Claims        []Claim
}

// Anonymous returns an unauthenticated principal
func Anonymous() Principal {
	return Principal{}
}

// NewPrincipal returns an authenticated principal with the given claims
func NewPrincipal(claims ...Claim) Principal {
	return Principal{Authenticated: true, Claims: claims}
}

// HasClaim reports whether a claim with exactly this type and value is present
func (p Principal) HasClaim(claimType, value string) bool {
	for _, c := range p.Claims {
		if c.Type == claimType && c.Value == value {
			return true
		}
	}
	return false
}

// Values returns every value carried by claims of the given type, in order
func (p Principal) Values(claimType string) []string {
	var values []string
	for _, c := range p.Claims {
		if c.Type == claimType {
			values = append(values, c.Value)
		}
	}
	return values
}

// IsActive reports whether the principal carries Ativo=True
func (p Principal) IsActive() bool {
	return p.HasClaim(ClaimActive, ActiveValue)
}

// GrantedModules returns the set of module identifiers granted through Modulo claims
func (p Principal) GrantedModules() map[string]struct{} {
	granted := make(map[string]struct{})
	for _, m := range p.Values(ClaimModule) {
		granted[m] = struct{}{}
	}
	return granted
}

// Fingerprint is a short stable digest of everything module decisions read from
// the principal: the authentication flag and the distinct Ativo and Modulo values.
// Claim order and duplicates do not change it.
func (p Principal) Fingerprint() string {
	h := sha256.New()
	if p.Authenticated {
		h.Write([]byte("authenticated\n"))
	}
	for _, claimType := range []string{ClaimActive, ClaimModule} {
		values := slices.Compact(slices.Sorted(slices.Values(p.Values(claimType))))
		h.Write([]byte(claimType + "=" + strings.Join(values, "\x00") + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
