package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("deliverable-1", "projects/p-1/1/essay.docx")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	grant, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "deliverable-1", grant.Subject)
	require.Equal(t, "projects/p-1/1/essay.docx", grant.Key)
	require.WithinDuration(t, expiresAt, grant.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("deliverable-1", "projects/p-1/1/essay.docx")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = signer.Parse(token)
	require.Error(t, err)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("deliverable-1", "projects/p-1/1/essay.docx")
	require.NoError(t, err)

	other := NewSignedURLSigner("other-secret", time.Hour)
	_, err = other.Parse(token)
	require.Error(t, err)
}
