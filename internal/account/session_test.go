package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conto/internal/core"
)

func TestJWTIssuerRoundTrip(t *testing.T) {
	clock := core.FixedClock{Instant: time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)}
	issuer := NewJWTIssuer("test-secret", time.Hour, clock)

	sess, err := issuer.Issue(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", sess.AccountEmail)
	assert.Equal(t, clock.Instant, sess.IssuedAt)
	assert.Equal(t, clock.Instant.Add(time.Hour), sess.ExpiresAt)

	subject, err := issuer.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", subject)
}

func TestJWTIssuerRejectsBadTokens(t *testing.T) {
	clock := core.FixedClock{Instant: time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)}
	issuer := NewJWTIssuer("test-secret", time.Hour, clock)

	_, err := issuer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidSession)

	// Token signed with a different secret.
	other := NewJWTIssuer("other-secret", time.Hour, clock)
	sess, err := other.Issue(context.Background(), "user@example.com")
	require.NoError(t, err)
	_, err = issuer.Verify(sess.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// Expired token.
	sess, err = issuer.Issue(context.Background(), "user@example.com")
	require.NoError(t, err)
	late := NewJWTIssuer("test-secret", time.Hour, core.FixedClock{Instant: clock.Instant.Add(2 * time.Hour)})
	_, err = late.Verify(sess.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(4) // min cost keeps the test fast

	hash, err := hasher.Hash("mypass")
	require.NoError(t, err)
	assert.NotEqual(t, "mypass", hash)
	assert.True(t, hasher.Verify("mypass", hash))
	assert.False(t, hasher.Verify("other", hash))
}
