// Package expense validates expense-form submissions and records the
// resulting entries.
package expense

import (
	"strings"

	"conto/internal/category"
	"conto/internal/core"
)

// Validator turns raw form input into a validated ExpenseRecord. It holds
// no mutable state and performs no persistence.
type Validator struct {
	tree  *category.Tree
	clock core.Clock
}

func NewValidator(tree *category.Tree, clock core.Clock) *Validator {
	return &Validator{tree: tree, clock: clock}
}

// Validate checks amount, category and date. The category must resolve to
// an existing leaf of the taxonomy; an absent date defaults to today as
// observed by the validator's clock. Failures are the stable core sentinels
// (bad-amount, bad-category, bad-date).
func (v *Validator) Validate(amount string, categoryID int64, date, description string) (core.ExpenseRecord, error) {
	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return core.ExpenseRecord{}, core.ErrBadAmount
	}

	if _, err := v.tree.Leaf(categoryID); err != nil {
		return core.ExpenseRecord{}, core.ErrBadCategory
	}

	day := v.clock.Today()
	if strings.TrimSpace(date) != "" {
		day, err = core.ParseDate(date)
		if err != nil {
			return core.ExpenseRecord{}, core.ErrBadDate
		}
	}

	rec := core.ExpenseRecord{
		Amount:      core.Money{Cents: cents},
		CategoryID:  categoryID,
		Date:        day,
		Description: strings.TrimSpace(description),
	}
	if err := rec.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	return rec, nil
}
