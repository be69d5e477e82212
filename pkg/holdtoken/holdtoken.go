package holdtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Claims carries the slot binding embedded in a hold token. The version
// pins the token to the exact reservation: once the slot's version moves
// past it, the token can no longer confirm.
type Claims struct {
	SlotID    string
	ClientID  string
	Version   int64
	ExpiresAt time.Time
}

// Signer creates and validates HMAC-signed hold tokens.
type Signer struct {
	secret []byte
}

// NewSigner constructs a signer with the provided secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Generate returns a signed token binding (slotID, clientID, version)
// until expiresAt.
func (s *Signer) Generate(slotID, clientID string, version int64, expiresAt time.Time) (string, error) {
	if slotID == "" || clientID == "" {
		return "", fmt.Errorf("slotID and clientID required")
	}
	if len(s.secret) == 0 {
		return "", fmt.Errorf("signing secret missing")
	}
	payload := s.payload(slotID, clientID, version, expiresAt.Unix())
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return strings.Join([]string{slotID, clientID, strconv.FormatInt(version, 10), strconv.FormatInt(expiresAt.Unix(), 10), signature}, "."), nil
}

// Parse validates a token signature and returns the embedded claims.
// Expiry is NOT checked here; callers compare Claims.ExpiresAt against
// their own clock so tests and the sweeper can reason about expired
// holds explicitly.
func (s *Signer) Parse(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid token format")
	}
	slotID, clientID := parts[0], parts[1]

	version, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version")
	}
	expUnix, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp")
	}

	payload := s.payload(slotID, clientID, version, expUnix)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(parts[4])) {
		return nil, fmt.Errorf("invalid token signature")
	}

	return &Claims{
		SlotID:    slotID,
		ClientID:  clientID,
		Version:   version,
		ExpiresAt: time.Unix(expUnix, 0),
	}, nil
}

func (s *Signer) payload(slotID, clientID string, version, expUnix int64) string {
	return fmt.Sprintf("%s|%s|%d|%d", slotID, clientID, version, expUnix)
}
