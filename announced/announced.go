// Package announced keeps a log of stream announcements in SQLite.
package announced

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nanachan-bot/nanachan/twitch"
)

//go:embed schema.sql
var schemaSQL string

// Init initializes an SQLite DB to record announcements.
func Init[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) error {
	conn, put, err := take(ctx, db)
	if err != nil {
		return fmt.Errorf("couldn't get conn to init announcements: %w", err)
	}
	defer put()
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize announcements schema: %w", err)
	}
	return nil
}

// Log is an announcement log. It implements [twitch.Ledger].
type Log struct {
	db *sqlitex.Pool
}

var _ twitch.Ledger = (*Log)(nil)

// Open opens an announcement log in an initialized database.
func Open(db *sqlitex.Pool) *Log {
	return &Log{db: db}
}

// Record records that a stream was announced.
// Recording the same stream twice keeps the first record.
func (l *Log) Record(ctx context.Context, s *twitch.Stream, at time.Time) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to record announcement: %w", err)
	}
	const insert = `INSERT INTO announced (stream, user, title, time) VALUES (:stream, :user, :title, :time) ON CONFLICT DO NOTHING`
	st, err := conn.Prepare(insert)
	if err != nil {
		return fmt.Errorf("couldn't prepare statement to record announcement: %w", err)
	}
	st.SetText(":stream", s.ID)
	st.SetText(":user", s.UserLogin)
	st.SetText(":title", s.Title)
	st.SetInt64(":time", at.UnixNano())
	if _, err := st.Step(); err != nil {
		return fmt.Errorf("couldn't insert announcement: %w", err)
	}
	return nil
}

// Announced reports whether a stream has been announced.
func (l *Log) Announced(ctx context.Context, stream string) (bool, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return false, fmt.Errorf("couldn't get conn to check announcement: %w", err)
	}
	st, err := conn.Prepare(`SELECT EXISTS (SELECT 1 FROM announced WHERE stream = :stream)`)
	if err != nil {
		return false, fmt.Errorf("couldn't prepare statement to check announcement: %w", err)
	}
	st.SetText(":stream", stream)
	ok, err := sqlitex.ResultBool(st)
	if err != nil {
		return false, fmt.Errorf("couldn't check announcement: %w", err)
	}
	return ok, nil
}

// Last returns the stream ID and time of the most recent announcement for a
// user. If there is none, the results are empty with a nil error.
func (l *Log) Last(ctx context.Context, user string) (string, time.Time, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("couldn't get conn to find announcement: %w", err)
	}
	var (
		id string
		tm int64
	)
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":user": user},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id = stmt.ColumnText(0)
			tm = stmt.ColumnInt64(1)
			return nil
		},
	}
	const sel = `SELECT stream, time FROM announced WHERE user = :user ORDER BY time DESC LIMIT 1`
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return "", time.Time{}, fmt.Errorf("couldn't find announcement: %w", err)
	}
	if id == "" {
		return "", time.Time{}, nil
	}
	return id, time.Unix(0, tm), nil
}

// take gets a connection from either a pool or a single connection.
// put returns it.
func take[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) (conn *sqlite.Conn, put func(), err error) {
	switch db := any(db).(type) {
	case *sqlite.Conn:
		return db, func() {}, nil
	case *sqlitex.Pool:
		conn, err := db.Take(ctx)
		if err != nil {
			return nil, func() {}, err
		}
		return conn, func() { db.Put(conn) }, nil
	}
	panic("unreachable")
}
