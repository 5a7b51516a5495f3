package sidecar

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// TokenMode selects how write endpoints are authenticated (spec.md §5).
type TokenMode string

const (
	TokenModeOff      TokenMode = "off"
	TokenModeAuto     TokenMode = "auto"
	TokenModeExplicit TokenMode = "explicit"
)

// tokenHeader is the header write endpoints require a matching token in.
const tokenHeader = "X-Agrafes-Token"

// resolveToken determines the effective auth token for a startup, given the
// configured mode and any explicit string. For "auto" it generates a fresh
// cryptographically strong token; for "off" it returns "" (no auth); for
// "explicit" it returns the configured string unchanged.
func resolveToken(mode TokenMode, explicit string) (string, error) {
	switch mode {
	case TokenModeOff:
		return "", nil
	case TokenModeExplicit:
		if explicit == "" {
			return "", fmt.Errorf("token mode %q requires a non-empty token", mode)
		}
		return explicit, nil
	case TokenModeAuto:
		return generateToken()
	default:
		return "", fmt.Errorf("unknown token mode %q", mode)
	}
}

// generateToken returns a hex-encoded random 256-bit token.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// tokensMatch compares the presented token to the expected one in constant
// time, guarding against timing side-channels on write endpoints.
func tokensMatch(expected, presented string) bool {
	if expected == "" {
		return true
	}
	if len(expected) != len(presented) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
