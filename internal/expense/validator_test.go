package expense

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conto/internal/category"
	"conto/internal/core"
)

func testTree(t *testing.T) *category.Tree {
	t.Helper()
	tree, err := category.BuildTree([]category.Row{
		{ID: 1, Label: "Food", ParentID: 0},
		{ID: 2, Label: "Groceries", ParentID: 1},
		{ID: 3, Label: "Restaurants", ParentID: 1},
		{ID: 4, Label: "Housing", ParentID: 0},
		{ID: 5, Label: "Rent", ParentID: 4},
	})
	require.NoError(t, err)
	return tree
}

func TestValidateAcceptsWellFormedEntry(t *testing.T) {
	clock := core.FixedClock{Instant: time.Date(2020, 2, 21, 9, 30, 0, 0, time.UTC)}
	v := NewValidator(testTree(t), clock)

	rec, err := v.Validate("99.95", 2, "2020-02-21", "weekly shop")
	require.NoError(t, err)
	assert.EqualValues(t, 9995, rec.Amount.Cents)
	assert.EqualValues(t, 2, rec.CategoryID)
	assert.Equal(t, "2020-02-21", rec.Date.String())
	assert.Equal(t, "weekly shop", rec.Description)
}

func TestValidateDefaultsEmptyDateToToday(t *testing.T) {
	clock := core.FixedClock{Instant: time.Date(2020, 2, 21, 9, 30, 0, 0, time.UTC)}
	v := NewValidator(testTree(t), clock)

	rec, err := v.Validate("99.95", 2, "", "")
	require.NoError(t, err)
	assert.Equal(t, "2020-02-21", rec.Date.String())
}

func TestValidateRejections(t *testing.T) {
	v := NewValidator(testTree(t), core.SystemClock{})

	tests := []struct {
		name       string
		amount     string
		categoryID int64
		date       string
		want       error
	}{
		{"zero amount", "0", 2, "2020-02-21", core.ErrBadAmount},
		{"negative amount", "-5", 2, "", core.ErrBadAmount},
		{"not a number", "abc", 2, "", core.ErrBadAmount},
		{"unknown category", "10.00", 99, "", core.ErrBadCategory},
		{"non-leaf category", "10.00", 1, "", core.ErrBadCategory},
		{"garbage date", "10.00", 2, "21/02/2020", core.ErrBadDate},
		{"impossible date", "10.00", 2, "2020-02-30", core.ErrBadDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.amount, tt.categoryID, tt.date, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

type recorderStub struct {
	rec  core.ExpenseRecord
	err  error
	next int64
}

func (r *recorderStub) AppendExpense(_ context.Context, rec core.ExpenseRecord) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.rec = rec
	r.next++
	return r.next, nil
}

type publisherStub struct {
	ids []int64
	err error
}

func (p *publisherStub) PublishExpenseRecorded(_ context.Context, id, _ int64) error {
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

func TestServiceRecordPublishes(t *testing.T) {
	rec := core.ExpenseRecord{Amount: core.Money{Cents: 1250}, CategoryID: 2, Date: core.NewDate(2020, 2, 21)}
	recorder := &recorderStub{}
	publisher := &publisherStub{}
	svc := NewService(recorder, publisher)

	id, err := svc.Record(context.Background(), rec)
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)
	assert.Equal(t, []int64{1}, publisher.ids)
}

func TestServiceRecordSurvivesPublishFailure(t *testing.T) {
	rec := core.ExpenseRecord{Amount: core.Money{Cents: 1250}, CategoryID: 2, Date: core.NewDate(2020, 2, 21)}
	svc := NewService(&recorderStub{}, &publisherStub{err: errors.New("broker down")})

	id, err := svc.Record(context.Background(), rec)
	require.NoError(t, err, "local write stays authoritative when the broker is down")
	assert.EqualValues(t, 1, id)
}

func TestServiceRecordPropagatesStoreError(t *testing.T) {
	svc := NewService(&recorderStub{err: errors.New("disk full")}, &publisherStub{})

	_, err := svc.Record(context.Background(), core.ExpenseRecord{})
	assert.Error(t, err)
}
