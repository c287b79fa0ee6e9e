// Package storage persists accounts, the category taxonomy and expense
// entries in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"conto/internal/account"
	"conto/internal/category"
	"conto/internal/core"

	_ "modernc.org/sqlite"
)

var (
	// ErrMissingData is returned when a category name is empty after
	// trimming whitespace.
	ErrMissingData = errors.New("missing-data")
	// ErrCategoryExists is returned when a category with the same name
	// already exists under the same parent.
	ErrCategoryExists = errors.New("category-exists")
	// ErrHasChildren is returned when deleting a category that still has
	// child categories.
	ErrHasChildren = errors.New("has-children")
	// ErrCategoryNotFound is returned when the referenced category does
	// not exist.
	ErrCategoryNotFound = errors.New("category-not-found")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Find implements account.Store. Lookup is by the exact email string.
func (r *SQLiteRepository) Find(ctx context.Context, emailAddr string) (*core.Account, error) {
	var (
		acct      core.Account
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT email, password_hash, created_at FROM accounts WHERE email = ?`,
		emailAddr,
	).Scan(&acct.Email, &acct.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	acct.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse account created_at: %w", err)
	}
	return &acct, nil
}

// Insert implements account.Store. A duplicate email surfaces as
// account.ErrConflict so the entry engine can retry the submission as a
// login.
func (r *SQLiteRepository) Insert(ctx context.Context, acct core.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (email, password_hash, created_at) VALUES (?, ?, ?)`,
		acct.Email, acct.PasswordHash, acct.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueViolation(err) {
		return account.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	slog.InfoContext(ctx, "Account created", "email", acct.Email)
	return nil
}

// CategoryRows returns every category as a flat row set, ordered so that
// category.BuildTree sees parents before children.
func (r *SQLiteRepository) CategoryRows(ctx context.Context) ([]category.Row, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, parent_id FROM categories ORDER BY parent_id, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []category.Row
	for rows.Next() {
		var row category.Row
		if err := rows.Scan(&row.ID, &row.Label, &row.ParentID); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CreateCategory adds a category under parentID (0 for a root category).
// The name must be non-empty after trimming Unicode whitespace and unique
// among its siblings.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string, parentID int64) (int64, error) {
	name = strings.TrimFunc(name, unicode.IsSpace)
	if name == "" {
		return 0, ErrMissingData
	}

	if parentID != 0 {
		var exists int
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM categories WHERE id = ?`, parentID).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("check parent category: %w", err)
		}
		if exists == 0 {
			return 0, ErrCategoryNotFound
		}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, parent_id) VALUES (?, ?)`, name, parentID)
	if isUniqueViolation(err) {
		return 0, ErrCategoryExists
	}
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("category insert id: %w", err)
	}

	slog.InfoContext(ctx, "Category created", "id", id, "name", name, "parent_id", parentID)
	return id, nil
}

// DeleteCategory removes a category. Categories that still have children
// cannot be deleted.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	var children int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE parent_id = ?`, id).Scan(&children)
	if err != nil {
		return fmt.Errorf("check child categories: %w", err)
	}
	if children > 0 {
		return ErrHasChildren
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCategoryNotFound
	}

	slog.InfoContext(ctx, "Category deleted", "id", id)
	return nil
}

// AppendExpense implements expense.Recorder.
func (r *SQLiteRepository) AppendExpense(ctx context.Context, rec core.ExpenseRecord) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (entry_date, description, amount_cents, category_id)
		 VALUES (?, ?, ?, ?)`,
		rec.Date.String(), rec.Description, rec.Amount.Cents, rec.CategoryID)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("expense insert id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", id,
		"amount_cents", rec.Amount.Cents,
		"category_id", rec.CategoryID,
		"date", rec.Date.String())
	return id, nil
}

// ExpenseRow is a stored expense together with its identifier and the
// label of its category leaf.
type ExpenseRow struct {
	ID           int64
	Record       core.ExpenseRecord
	CategoryName string
}

func scanExpenseRow(rows interface {
	Scan(dest ...any) error
}) (ExpenseRow, error) {
	var (
		row     ExpenseRow
		rawDate string
	)
	err := rows.Scan(&row.ID, &rawDate, &row.Record.Description,
		&row.Record.Amount.Cents, &row.Record.CategoryID, &row.CategoryName)
	if err != nil {
		return ExpenseRow{}, err
	}
	row.Record.Date, err = core.ParseDate(rawDate)
	if err != nil {
		return ExpenseRow{}, fmt.Errorf("parse stored date %q: %w", rawDate, err)
	}
	return row, nil
}

const expenseSelect = `
	SELECT e.id, e.entry_date, e.description, e.amount_cents, e.category_id, c.name
	FROM expenses e
	JOIN categories c ON c.id = e.category_id`

// GetExpense retrieves a single expense by ID.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (ExpenseRow, error) {
	row, err := scanExpenseRow(r.db.QueryRowContext(ctx, expenseSelect+` WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ExpenseRow{}, fmt.Errorf("expense %d: %w", id, err)
	}
	if err != nil {
		return ExpenseRow{}, fmt.Errorf("get expense: %w", err)
	}
	return row, nil
}

// ListExpenses returns the expenses of a calendar month, oldest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, year, month int) ([]ExpenseRow, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	rows, err := r.db.QueryContext(ctx,
		expenseSelect+` WHERE e.entry_date LIKE ? || '%' ORDER BY e.entry_date, e.id`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []ExpenseRow
	for rows.Next() {
		row, err := scanExpenseRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CategoryAmount is the spend attributed to one root category.
type CategoryAmount struct {
	Name   string
	Amount core.Money
}

// MonthOverview aggregates a calendar month for the dashboard.
type MonthOverview struct {
	Year       int
	Month      int
	Total      core.Money
	ByCategory []CategoryAmount
}

// ReadMonthOverview sums a month's expenses, grouped by the root ancestor
// of each expense's category leaf.
func (r *SQLiteRepository) ReadMonthOverview(ctx context.Context, year, month int) (MonthOverview, error) {
	overview := MonthOverview{Year: year, Month: month}
	prefix := fmt.Sprintf("%04d-%02d-", year, month)

	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE entry_date LIKE ? || '%'`,
		prefix).Scan(&overview.Total.Cents)
	if err != nil {
		return overview, fmt.Errorf("get month total: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		WITH RECURSIVE lineage(id, root_id) AS (
			SELECT id, id FROM categories WHERE parent_id = 0
			UNION ALL
			SELECT c.id, l.root_id FROM categories c JOIN lineage l ON c.parent_id = l.id
		)
		SELECT r.name, SUM(e.amount_cents) AS total
		FROM expenses e
		JOIN lineage l ON l.id = e.category_id
		JOIN categories r ON r.id = l.root_id
		WHERE e.entry_date LIKE ? || '%'
		GROUP BY r.name
		ORDER BY total DESC`, prefix)
	if err != nil {
		return overview, fmt.Errorf("get category sums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ca CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return overview, fmt.Errorf("scan category sum: %w", err)
		}
		overview.ByCategory = append(overview.ByCategory, ca)
	}
	return overview, rows.Err()
}

// PendingSyncExpense is the minimal record queued for ledger export.
type PendingSyncExpense struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

// GetPendingSyncExpenses returns expenses not yet exported to the ledger,
// oldest first.
func (r *SQLiteRepository) GetPendingSyncExpenses(ctx context.Context, limit int) ([]PendingSyncExpense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sync_version, created_at FROM expenses
		 WHERE sync_status = 'pending' ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync expenses: %w", err)
	}
	defer rows.Close()

	var out []PendingSyncExpense
	for rows.Next() {
		var (
			p         PendingSyncExpense
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending expense: %w", err)
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			// created_at uses SQLite's datetime() default on rows written
			// before the app formatted timestamps itself.
			p.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks an expense as successfully exported.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET sync_status = 'synced' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	slog.InfoContext(ctx, "Expense marked as synced", "id", id)
	return nil
}

// MarkSyncError marks an expense as having failed export so the periodic
// scan retries it separately from fresh entries.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET sync_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with sync error", "id", id)
	return nil
}
