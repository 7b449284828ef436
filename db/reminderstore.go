package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	app "github.com/automationpanda/bulldoggy"
	_ "github.com/mattn/go-sqlite3" // sqlite
)

//go:embed migration/*.sql
var migrationFS embed.FS

// ReminderStore stores reminder lists and items in sqlite. Every query is
// parameterized by the owner username, so one user's ids are unreachable
// from another user's session.
type ReminderStore struct {
	db  *sql.DB
	dsn string
}

// NewReminderStore creates a new instance of a ReminderStore.
func NewReminderStore(dsn string) (*ReminderStore, error) {
	return &ReminderStore{dsn: dsn}, nil
}

// Open opens the connection to the database.
func (rs *ReminderStore) Open() error {
	// Ensure a DSN is set before attempting to open the database.
	if rs.dsn == "" {
		return fmt.Errorf("dsn required")
	}

	// Make the parent directory unless using an in-memory db.
	if rs.dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(rs.dsn), 0700); err != nil {
			return err
		}
	}

	// Connect to the database.
	var err error
	if rs.db, err = sql.Open("sqlite3", rs.dsn); err != nil {
		return err
	}

	// Enable WAL. SQLite performs better with the WAL because it allows
	// multiple readers to operate while data is being written.
	if _, err := rs.db.Exec(`PRAGMA journal_mode = wal;`); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}

	// Enable foreign key checks, which sqlite leaves off by default.
	// Deleting a list cascades to its items through the FK.
	if _, err := rs.db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return fmt.Errorf("foreign keys pragma: %w", err)
	}

	if err := rs.migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

// Close closes the connection to the data store.
func (rs *ReminderStore) Close() error {
	if rs.db != nil {
		return rs.db.Close()
	}
	return nil
}

// Lists returns the owner's lists in display order. A brand-new user gets
// an empty sequence.
func (rs *ReminderStore) Lists(ctx context.Context, owner string) ([]app.List, error) {
	rows, err := rs.db.QueryContext(ctx,
		`SELECT id, owner, name, ordinal FROM list WHERE owner = ? ORDER BY ordinal`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []app.List{}
	for rows.Next() {
		var l app.List
		if err := rows.Scan(&l.ID, &l.Owner, &l.Name, &l.Ordinal); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lists, nil
}

// GetList returns one of the owner's lists by id.
func (rs *ReminderStore) GetList(ctx context.Context, owner string, id int64) (app.List, error) {
	row := rs.db.QueryRowContext(ctx,
		`SELECT id, owner, name, ordinal FROM list WHERE id = ? AND owner = ?`, id, owner)
	var l app.List
	err := row.Scan(&l.ID, &l.Owner, &l.Name, &l.Ordinal)
	if errors.Is(err, sql.ErrNoRows) {
		return app.List{}, app.ErrNotFound
	}
	if err != nil {
		return app.List{}, err
	}
	return l, nil
}

// CreateList appends a new, empty list after the owner's existing lists.
func (rs *ReminderStore) CreateList(ctx context.Context, owner, name string) (app.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return app.List{}, app.ErrEmptyName
	}

	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return app.List{}, err
	}
	defer tx.Rollback()

	// The ordinal is computed in the same transaction as the insert so a
	// double-submit cannot produce duplicate ordinals.
	var ordinal int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ordinal), 0) + 1 FROM list WHERE owner = ?`, owner).Scan(&ordinal); err != nil {
		return app.List{}, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO list (owner, name, ordinal) VALUES (?, ?, ?)`, owner, name, ordinal)
	if err != nil {
		return app.List{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return app.List{}, err
	}

	if err := tx.Commit(); err != nil {
		return app.List{}, err
	}
	return app.List{ID: id, Owner: owner, Name: name, Ordinal: ordinal}, nil
}

// RenameList renames one of the owner's lists.
func (rs *ReminderStore) RenameList(ctx context.Context, owner string, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return app.ErrEmptyName
	}

	res, err := rs.db.ExecContext(ctx,
		`UPDATE list SET name = ? WHERE id = ? AND owner = ?`, name, id, owner)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteList deletes one of the owner's lists; the FK cascades deletion to
// the list's items.
func (rs *ReminderStore) DeleteList(ctx context.Context, owner string, id int64) error {
	res, err := rs.db.ExecContext(ctx,
		`DELETE FROM list WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Items returns a list's items in display order.
func (rs *ReminderStore) Items(ctx context.Context, owner string, listID int64) ([]app.Item, error) {
	// Resolve the list through the owner first so a foreign list id reads
	// as not found rather than an empty list.
	if _, err := rs.GetList(ctx, owner, listID); err != nil {
		return nil, err
	}

	rows, err := rs.db.QueryContext(ctx,
		`SELECT id, list_id, description, completed, ordinal FROM item
		 WHERE list_id = ? ORDER BY ordinal`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []app.Item{}
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetItem returns one of the owner's items by id.
func (rs *ReminderStore) GetItem(ctx context.Context, owner string, id int64) (app.Item, error) {
	row := rs.db.QueryRowContext(ctx,
		`SELECT item.id, item.list_id, item.description, item.completed, item.ordinal
		 FROM item JOIN list ON list.id = item.list_id
		 WHERE item.id = ? AND list.owner = ?`, id, owner)
	i, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return app.Item{}, app.ErrNotFound
	}
	if err != nil {
		return app.Item{}, err
	}
	return i, nil
}

// CreateItem appends a new, unstruck item to one of the owner's lists.
func (rs *ReminderStore) CreateItem(ctx context.Context, owner string, listID int64, description string) (app.Item, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return app.Item{}, app.ErrEmptyName
	}

	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return app.Item{}, err
	}
	defer tx.Rollback()

	var listCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM list WHERE id = ? AND owner = ?`, listID, owner).Scan(&listCount); err != nil {
		return app.Item{}, err
	}
	if listCount == 0 {
		return app.Item{}, app.ErrNotFound
	}

	var ordinal int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ordinal), 0) + 1 FROM item WHERE list_id = ?`, listID).Scan(&ordinal); err != nil {
		return app.Item{}, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO item (list_id, description, completed, ordinal) VALUES (?, ?, 0, ?)`,
		listID, description, ordinal)
	if err != nil {
		return app.Item{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return app.Item{}, err
	}

	if err := tx.Commit(); err != nil {
		return app.Item{}, err
	}
	return app.Item{ID: id, ListID: listID, Description: description, Ordinal: ordinal}, nil
}

// RenameItem changes an item's description without touching its completed
// state or position.
func (rs *ReminderStore) RenameItem(ctx context.Context, owner string, id int64, description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return app.ErrEmptyName
	}

	res, err := rs.db.ExecContext(ctx,
		`UPDATE item SET description = ?
		 WHERE id = ? AND list_id IN (SELECT id FROM list WHERE owner = ?)`,
		description, id, owner)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ToggleItem flips an item's completed flag and returns the updated item.
func (rs *ReminderStore) ToggleItem(ctx context.Context, owner string, id int64) (app.Item, error) {
	res, err := rs.db.ExecContext(ctx,
		`UPDATE item SET completed = 1 - completed
		 WHERE id = ? AND list_id IN (SELECT id FROM list WHERE owner = ?)`,
		id, owner)
	if err != nil {
		return app.Item{}, err
	}
	if err := requireRow(res); err != nil {
		return app.Item{}, err
	}
	return rs.GetItem(ctx, owner, id)
}

// DeleteItem deletes one of the owner's items.
func (rs *ReminderStore) DeleteItem(ctx context.Context, owner string, id int64) error {
	res, err := rs.db.ExecContext(ctx,
		`DELETE FROM item
		 WHERE id = ? AND list_id IN (SELECT id FROM list WHERE owner = ?)`,
		id, owner)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// requireRow maps a zero-row mutation to ErrNotFound. Missing and
// not-owned rows are indistinguishable on purpose.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return app.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (app.Item, error) {
	var i app.Item
	var completed int
	if err := row.Scan(&i.ID, &i.ListID, &i.Description, &completed, &i.Ordinal); err != nil {
		return app.Item{}, err
	}
	i.Completed = completed != 0
	return i, nil
}

// migrate sets up migration tracking and executes pending migration files.
//
// Migration files are embedded in the migration folder and are executed in
// lexigraphical order.
//
// Once a migration is run, its name is stored in the 'migrations' table so
// it is not re-executed. Migrations run in a transaction to prevent partial
// migrations.
func (rs *ReminderStore) migrate() error {
	// Ensure the 'migrations' table exists so we don't duplicate migrations.
	if _, err := rs.db.Exec(`CREATE TABLE IF NOT EXISTS migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("cannot create migrations table: %w", err)
	}

	entries, err := migrationFS.ReadDir("migration")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, "migration/"+e.Name())
	}
	sort.Strings(names)

	// Loop over all migration files and execute them in order.
	for _, name := range names {
		if err := rs.migrateFile(name); err != nil {
			return fmt.Errorf("migration error: name=%q err=%w", name, err)
		}
	}
	return nil
}

// migrateFile runs a single migration file within a transaction. On
// success, the migration file name is saved to the "migrations" table to
// prevent re-running.
func (rs *ReminderStore) migrateFile(name string) error {
	tx, err := rs.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Ensure migration has not already been run.
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM migrations WHERE name = ?`, name).Scan(&n); err != nil {
		return err
	} else if n != 0 {
		return nil // already run migration, skip
	}

	// Read and execute migration file.
	if buf, err := migrationFS.ReadFile(name); err != nil {
		return err
	} else if _, err := tx.Exec(string(buf)); err != nil {
		return err
	}

	// Insert record into migrations to prevent re-running migration.
	if _, err := tx.Exec(`INSERT INTO migrations (name) VALUES (?)`, name); err != nil {
		return err
	}

	return tx.Commit()
}
