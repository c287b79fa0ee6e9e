package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// Date is a calendar date at UTC midnight.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Account is the unique identity record for one email address.
	// Accounts are created once and never mutated by this core.
	Account struct {
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Session references an Account by email; it does not own it.
	Session struct {
		AccountEmail string
		Token        string
		IssuedAt     time.Time
		ExpiresAt    time.Time
	}

	// ExpenseRecord is an immutable validated expense entry. Category is
	// referenced by ID rather than label so renames do not orphan records.
	ExpenseRecord struct {
		Amount      Money
		CategoryID  int64
		Date        Date
		Description string
	}
)

// Stable machine-readable reasons for validation failures. The error text is
// the reason code reported to callers.
var (
	ErrBadAmount       = errors.New("bad-amount")
	ErrBadCategory     = errors.New("bad-category")
	ErrBadDate         = errors.New("bad-date")
	ErrMissingPassword = errors.New("missing-password")
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrBadDate
	}
	return Date{Time: t.UTC()}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrBadDate
	}
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int { return d.Time.Day() }

// Month returns the month as an int.
func (d Date) Month() int { return int(d.Time.Month()) }

// Year returns the year.
func (d Date) Year() int { return d.Time.Year() }

func (d Date) String() string { return d.Format("2006-01-02") }

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrBadAmount
	}
	return nil
}

func (r ExpenseRecord) Validate() error {
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if r.CategoryID <= 0 {
		return ErrBadCategory
	}
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if len(r.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}
