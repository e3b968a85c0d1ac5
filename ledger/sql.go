package ledger

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQL is a ban list Persister backed by an SQLite database.
type SQL struct {
	db *sqlitex.Pool
}

// Open opens an existing ban list in an SQL database.
func Open(ctx context.Context, db *sqlitex.Pool) (*SQL, error) {
	return &SQL{db: db}, nil
}

// Init initializes a ban list in an SQL database.
// For convenience, it accepts either a single connection or a pool.
// It is safe to call Init on a database that already has a ban list.
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
	err := sqlitex.ExecuteTransient(conn, `CREATE TABLE IF NOT EXISTS banned (user TEXT PRIMARY KEY) STRICT, WITHOUT ROWID`, nil)
	if err != nil {
		return fmt.Errorf("couldn't create ban list: %w", err)
	}
	return nil
}

// Load returns the banned users in the database.
func (s *SQL) Load(ctx context.Context) ([]string, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to read ban list: %w", err)
	}
	var r []string
	opts := sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r = append(r, stmt.ColumnText(0))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, `SELECT user FROM banned ORDER BY user`, &opts); err != nil {
		return nil, fmt.Errorf("couldn't read ban list: %w", err)
	}
	return r, nil
}

// Save replaces the banned users in the database.
func (s *SQL) Save(ctx context.Context, banned []string) (err error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to save ban list: %w", err)
	}
	defer sqlitex.Save(conn)(&err)
	if err := sqlitex.Execute(conn, `DELETE FROM banned`, nil); err != nil {
		return fmt.Errorf("couldn't clear ban list: %w", err)
	}
	for _, u := range banned {
		opts := sqlitex.ExecOptions{Args: []any{u}}
		if err := sqlitex.Execute(conn, `INSERT OR IGNORE INTO banned (user) VALUES (?)`, &opts); err != nil {
			return fmt.Errorf("couldn't add %q to ban list: %w", u, err)
		}
	}
	return nil
}
