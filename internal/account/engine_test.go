package account

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conto/internal/core"
	"conto/internal/email"
)

type fakeHasher struct{}

func (fakeHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

func (fakeHasher) Verify(plain, hash string) bool { return hash == "hashed:"+plain }

type fakeIssuer struct{}

func (fakeIssuer) Issue(_ context.Context, emailAddr string) (core.Session, error) {
	return core.Session{AccountEmail: emailAddr, Token: "tok-" + emailAddr, IssuedAt: time.Now()}, nil
}

// countingStore wraps a Store and counts accesses so tests can assert that
// rejected submissions never touch the store.
type countingStore struct {
	inner   Store
	finds   atomic.Int64
	inserts atomic.Int64
}

func (s *countingStore) Find(ctx context.Context, emailAddr string) (*core.Account, error) {
	s.finds.Add(1)
	return s.inner.Find(ctx, emailAddr)
}

func (s *countingStore) Insert(ctx context.Context, acct core.Account) error {
	s.inserts.Add(1)
	return s.inner.Insert(ctx, acct)
}

func newTestEngine(store Store) *Engine {
	return NewEngine(store, fakeIssuer{}, fakeHasher{}, core.SystemClock{})
}

func TestSubmitRegistersNovelEmail(t *testing.T) {
	store := NewMemoryStore()
	engine := newTestEngine(store)

	out, err := engine.Submit(context.Background(), "new@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, StatusRegistered, out.Status)
	assert.Equal(t, "new@example.com", out.Session.AccountEmail)
	assert.NotEmpty(t, out.Session.Token)
	assert.Equal(t, 1, store.Len())
}

func TestSubmitMergesIntoLogin(t *testing.T) {
	store := NewMemoryStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	first, err := engine.Submit(ctx, "reuben-Tomas@demonic.demon.co.uk", "mypass")
	require.NoError(t, err)
	require.Equal(t, StatusRegistered, first.Status)

	// Same credentials on the register form: silently logged in, no
	// duplicate account, no error.
	second, err := engine.Submit(ctx, "reuben-Tomas@demonic.demon.co.uk", "mypass")
	require.NoError(t, err)
	assert.Equal(t, StatusLoggedIn, second.Status)
	assert.Equal(t, 1, store.Len())

	// Wrong password: rejected, still no second account.
	third, err := engine.Submit(ctx, "reuben-Tomas@demonic.demon.co.uk", "wrong")
	require.NoError(t, err)
	assert.True(t, third.Rejected())
	assert.Equal(t, ReasonCredentialMismatch, third.Reason)
	assert.Equal(t, 1, store.Len())
}

func TestSubmitMissingPasswordSkipsStore(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore()}
	engine := newTestEngine(store)

	out, err := engine.Submit(context.Background(), "a@b.com", "")
	require.NoError(t, err)
	assert.True(t, out.Rejected())
	assert.Equal(t, ReasonMissingPassword, out.Reason)
	assert.EqualValues(t, 0, store.finds.Load())
	assert.EqualValues(t, 0, store.inserts.Load())
}

func TestSubmitInvalidEmailSkipsStore(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore()}
	engine := newTestEngine(store)

	out, err := engine.Submit(context.Background(), "something@@somewhere.com", "secret")
	require.NoError(t, err)
	assert.True(t, out.Rejected())
	assert.Equal(t, ReasonInvalidEmail, out.Reason)
	assert.Equal(t, email.ReasonMalformedStructure, out.EmailReason)
	assert.EqualValues(t, 0, store.finds.Load())
}

func TestSubmitConcurrentSameEmail(t *testing.T) {
	store := NewMemoryStore()
	engine := newTestEngine(store)

	const n = 16
	outcomes := make([]Outcome, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = engine.Submit(context.Background(), "race@example.com", "pw")
		}(i)
	}
	wg.Wait()

	registered, loggedIn := 0, 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		switch outcomes[i].Status {
		case StatusRegistered:
			registered++
		case StatusLoggedIn:
			loggedIn++
		default:
			t.Fatalf("unexpected outcome %+v", outcomes[i])
		}
	}

	assert.Equal(t, 1, registered, "exactly one submission registers")
	assert.Equal(t, n-1, loggedIn)
	assert.Equal(t, 1, store.Len(), "never more than one account per email")
}

// racingStore simulates an eventually consistent store: the first lookup
// misses even though a concurrent writer already inserted the account.
type racingStore struct {
	mu       sync.Mutex
	acct     *core.Account
	missOnce bool
}

func (s *racingStore) Find(ctx context.Context, emailAddr string) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.missOnce {
		s.missOnce = true
		return nil, ErrNotFound
	}
	if s.acct == nil {
		return nil, ErrNotFound
	}
	return s.acct, nil
}

func (s *racingStore) Insert(ctx context.Context, acct core.Account) error {
	return ErrConflict
}

func TestSubmitInsertRaceRetriesAsLogin(t *testing.T) {
	store := &racingStore{
		acct: &core.Account{Email: "race@example.com", PasswordHash: "hashed:pw"},
	}
	engine := newTestEngine(store)

	out, err := engine.Submit(context.Background(), "race@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, StatusLoggedIn, out.Status)

	// Losing the race with a password that does not match the winner's
	// credential rejects instead.
	store.missOnce = false
	out, err = engine.Submit(context.Background(), "race@example.com", "other")
	require.NoError(t, err)
	assert.Equal(t, ReasonCredentialMismatch, out.Reason)
}
