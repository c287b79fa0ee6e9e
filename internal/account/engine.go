// Package account implements the unified account-entry operation: one
// idempotent submit that registers a novel email and silently authenticates
// a known one. "Email already registered" is never surfaced as an error.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"conto/internal/core"
	"conto/internal/email"
)

// Store sentinel errors. Implementations map their native uniqueness and
// lookup failures onto these.
var (
	ErrNotFound = errors.New("account not found")
	ErrConflict = errors.New("account already exists")
)

// Store is the account lookup/insert port. Lookups are exact-match and
// case-sensitive; Insert must detect a concurrent insert of the same email
// and report ErrConflict.
type Store interface {
	Find(ctx context.Context, emailAddr string) (*core.Account, error)
	Insert(ctx context.Context, acct core.Account) error
}

// SessionIssuer mints a session for an authenticated email.
type SessionIssuer interface {
	Issue(ctx context.Context, emailAddr string) (core.Session, error)
}

// PasswordHasher derives and checks opaque one-way credentials.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// Status is the terminal branch of one submission.
type Status string

const (
	StatusRejected   Status = "rejected"
	StatusRegistered Status = "registered"
	StatusLoggedIn   Status = "logged-in"
)

// RejectReason is the stable machine-readable cause of a rejection.
type RejectReason string

const (
	ReasonMissingPassword    RejectReason = "missing-password"
	ReasonInvalidEmail       RejectReason = "invalid-email"
	ReasonCredentialMismatch RejectReason = "credential-mismatch"
)

// Outcome is the result of one submit. Completed outcomes carry a session;
// rejected outcomes carry a reason, plus the email sub-reason when the
// address itself was malformed.
type Outcome struct {
	Status      Status
	Reason      RejectReason
	EmailReason email.Reason
	Session     core.Session
}

// Rejected reports whether the submission terminated without a session.
func (o Outcome) Rejected() bool { return o.Status == StatusRejected }

func rejected(reason RejectReason) Outcome {
	return Outcome{Status: StatusRejected, Reason: reason}
}

// Engine orchestrates validation, duplicate detection, credential check and
// session issuance. Safe for concurrent use; submissions for the same email
// serialize on a per-email critical section so the lookup-then-create
// sequence is atomic with respect to other submissions for that email.
type Engine struct {
	store    Store
	sessions SessionIssuer
	hasher   PasswordHasher
	clock    core.Clock
	locks    keyedMutex
}

func NewEngine(store Store, sessions SessionIssuer, hasher PasswordHasher, clock core.Clock) *Engine {
	return &Engine{
		store:    store,
		sessions: sessions,
		hasher:   hasher,
		clock:    clock,
	}
}

// Submit runs the account-entry state machine for one form submission.
//
// The password check runs first and an empty password rejects before any
// store access; the email syntax check likewise short-circuits store I/O.
// A novel email registers; a known email with a matching password logs in
// with no error surfaced; a known email with a wrong password is rejected.
// The returned error is reserved for infrastructure failures (store I/O,
// hashing); every validation or credential failure is an Outcome value.
func (e *Engine) Submit(ctx context.Context, emailAddr, password string) (Outcome, error) {
	if password == "" {
		return rejected(ReasonMissingPassword), nil
	}
	if res := email.Validate(emailAddr); !res.OK {
		out := rejected(ReasonInvalidEmail)
		out.EmailReason = res.Reason
		return out, nil
	}

	unlock := e.locks.lock(emailAddr)
	defer unlock()

	existing, err := e.store.Find(ctx, emailAddr)
	switch {
	case err == nil:
		return e.authenticate(ctx, existing, password)
	case errors.Is(err, ErrNotFound):
		return e.register(ctx, emailAddr, password)
	default:
		return Outcome{}, fmt.Errorf("find account: %w", err)
	}
}

// register creates the account and issues a session. Losing an insert race
// re-evaluates the submission as an authentication attempt against the
// winner's credential, so at most one account ever exists per email.
func (e *Engine) register(ctx context.Context, emailAddr, password string) (Outcome, error) {
	hash, err := e.hasher.Hash(password)
	if err != nil {
		return Outcome{}, fmt.Errorf("hash password: %w", err)
	}

	acct := core.Account{
		Email:        emailAddr,
		PasswordHash: hash,
		CreatedAt:    e.clock.Now(),
	}
	err = e.store.Insert(ctx, acct)
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		winner, findErr := e.store.Find(ctx, emailAddr)
		if findErr != nil {
			return Outcome{}, fmt.Errorf("re-find after insert conflict: %w", findErr)
		}
		slog.InfoContext(ctx, "Insert race lost, retrying as login", "email", emailAddr)
		return e.authenticate(ctx, winner, password)
	default:
		return Outcome{}, fmt.Errorf("insert account: %w", err)
	}

	sess, err := e.sessions.Issue(ctx, emailAddr)
	if err != nil {
		return Outcome{}, fmt.Errorf("issue session: %w", err)
	}
	slog.InfoContext(ctx, "Account registered", "email", emailAddr)
	return Outcome{Status: StatusRegistered, Session: sess}, nil
}

func (e *Engine) authenticate(ctx context.Context, acct *core.Account, password string) (Outcome, error) {
	if !e.hasher.Verify(password, acct.PasswordHash) {
		return rejected(ReasonCredentialMismatch), nil
	}
	sess, err := e.sessions.Issue(ctx, acct.Email)
	if err != nil {
		return Outcome{}, fmt.Errorf("issue session: %w", err)
	}
	slog.DebugContext(ctx, "Account authenticated", "email", acct.Email)
	return Outcome{Status: StatusLoggedIn, Session: sess}, nil
}

// keyedMutex serializes goroutines holding the same key while letting
// distinct keys proceed in parallel. Entries are reference-counted and
// removed when the last holder releases, so the map does not grow with the
// number of distinct emails ever seen.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*lockEntry)
	}
	e := k.entries[key]
	if e == nil {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
