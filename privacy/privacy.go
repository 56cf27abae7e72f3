// Package privacy keeps the list of users who opted out of features that
// record or repost their messages.
package privacy

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrPrivate is an error returned by Check when the user is in the list.
var ErrPrivate = errors.New("user is private")

// Feature names a feature users can opt out of.
type Feature string

const (
	// AI is recording messages into AI chat history.
	AI Feature = "ai"
	// Embed is reposting messages with fixed link embeds.
	Embed Feature = "embed"
)

// Features lists all features in display order.
var Features = []Feature{AI, Embed}

// List is a privacy list backed by an SQL database.
type List struct {
	db *sqlitex.Pool
}

// Open opens an existing privacy list in an SQL database.
func Open(ctx context.Context, db *sqlitex.Pool) (*List, error) {
	conn, err := db.Take(ctx)
	defer db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to open privacy list: %w", err)
	}
	st, err := conn.Prepare(`SELECT EXISTS (SELECT 1 FROM sqlite_schema WHERE type = 'table' AND name = 'privacy')`)
	if err != nil {
		return nil, fmt.Errorf("couldn't prepare statement to check privacy schema: %w", err)
	}
	ok, err := sqlitex.ResultBool(st)
	if err != nil {
		return nil, fmt.Errorf("couldn't check privacy schema: %w", err)
	}
	if !ok {
		return nil, errors.New("privacy list is not initialized")
	}
	return &List{db: db}, nil
}

// Init initializes a list in an SQL database.
// For convenience, it accepts either a single connection or a pool.
func Init[DB *sqlite.Conn | *sqlitex.Pool](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get connection from pool: %w", err)
		}
	}
	const create = `CREATE TABLE IF NOT EXISTS privacy (
		user TEXT NOT NULL,
		feature TEXT NOT NULL,
		PRIMARY KEY (user, feature)
	) STRICT, WITHOUT ROWID`
	return sqlitex.ExecuteTransient(conn, create, nil)
}

// Add adds a user to the list for a feature.
// Adding a user who is already private has no effect.
func (l *List) Add(ctx context.Context, user string, f Feature) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to add user to privacy list: %w", err)
	}
	opts := sqlitex.ExecOptions{Args: []any{user, string(f)}}
	err = sqlitex.Execute(conn, `INSERT INTO privacy (user, feature) VALUES (?, ?) ON CONFLICT DO NOTHING`, &opts)
	return err
}

// Remove removes a user from the list for a feature.
func (l *List) Remove(ctx context.Context, user string, f Feature) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to remove user from privacy list: %w", err)
	}
	opts := sqlitex.ExecOptions{Args: []any{user, string(f)}}
	err = sqlitex.Execute(conn, `DELETE FROM privacy WHERE user=? AND feature=?`, &opts)
	return err
}

// Toggle flips a user's privacy for a feature and reports whether the user
// is now private.
func (l *List) Toggle(ctx context.Context, user string, f Feature) (private bool, err error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return false, fmt.Errorf("couldn't get connection to toggle privacy: %w", err)
	}
	defer sqlitex.Save(conn)(&err)
	opts := sqlitex.ExecOptions{Args: []any{user, string(f)}}
	if err := sqlitex.Execute(conn, `DELETE FROM privacy WHERE user=? AND feature=?`, &opts); err != nil {
		return false, fmt.Errorf("couldn't toggle privacy: %w", err)
	}
	if conn.Changes() > 0 {
		return false, nil
	}
	if err := sqlitex.Execute(conn, `INSERT INTO privacy (user, feature) VALUES (?, ?)`, &opts); err != nil {
		return false, fmt.Errorf("couldn't toggle privacy: %w", err)
	}
	return true, nil
}

// Check checks whether a user is in the list for a feature.
// The result is ErrPrivate if so.
func (l *List) Check(ctx context.Context, user string, f Feature) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to check user privacy: %w", err)
	}
	st, err := conn.Prepare(`SELECT EXISTS (SELECT 1 FROM privacy WHERE user=? AND feature=?)`)
	if err != nil {
		return fmt.Errorf("couldn't prepare statement to check user privacy: %w", err)
	}
	st.BindText(1, user)
	st.BindText(2, string(f))
	ok, err := sqlitex.ResultBool(st)
	if err != nil {
		return err
	}
	if ok {
		return ErrPrivate
	}
	return nil
}

// Of lists the features for which a user is private.
func (l *List) Of(ctx context.Context, user string) ([]Feature, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to list user privacy: %w", err)
	}
	var r []Feature
	opts := sqlitex.ExecOptions{
		Args: []any{user},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r = append(r, Feature(stmt.ColumnText(0)))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, `SELECT feature FROM privacy WHERE user=? ORDER BY feature`, &opts); err != nil {
		return nil, fmt.Errorf("couldn't list user privacy: %w", err)
	}
	return r, nil
}
