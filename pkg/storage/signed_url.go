package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Grant is the content of a verified download token.
type Grant struct {
	Subject   string
	Key       string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token granting access to key on behalf of subject.
func (s *SignedURLSigner) Generate(subject, key string) (string, time.Time, error) {
	if subject == "" || key == "" {
		return "", time.Time{}, fmt.Errorf("subject and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{subject, exp, encodedKey, s.sign(subject, exp, encodedKey)}, ".")
	return token, expiresAt, nil
}

// Parse validates the token signature and expiry.
func (s *SignedURLSigner) Parse(token string) (Grant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Grant{}, fmt.Errorf("invalid token format")
	}
	subject, exp, encodedKey, signature := parts[0], parts[1], parts[2], parts[3]
	if !hmac.Equal([]byte(s.sign(subject, exp, encodedKey)), []byte(signature)) {
		return Grant{}, fmt.Errorf("invalid token signature")
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return Grant{}, fmt.Errorf("invalid timestamp")
	}
	rawKey, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return Grant{}, fmt.Errorf("decode key: %w", err)
	}
	grant := Grant{Subject: subject, Key: string(rawKey), ExpiresAt: time.Unix(expUnix, 0)}
	if s.now().After(grant.ExpiresAt) {
		return Grant{}, fmt.Errorf("token expired")
	}
	return grant, nil
}

func (s *SignedURLSigner) sign(subject, exp, encodedKey string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(subject + "|" + exp + "|" + encodedKey))
	return hex.EncodeToString(mac.Sum(nil))
}
