// Package metadata talks to the cluster's metadata schema: topology
// discovery, router identity registration, and the write-back of endpoint
// information.
package metadata

import (
	"context"
	"database/sql"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

// Row is one result row with nullable string columns.
type Row []sql.NullString

// Session is the SQL capability the bootstrap consumes. Result sets here are
// tiny (cluster membership tables), so rows are materialized, not streamed.
type Session interface {
	Query(ctx context.Context, stmt string) ([]Row, error)
	QueryOne(ctx context.Context, stmt string) (Row, error)
	Execute(ctx context.Context, stmt string) error
	Quote(value string) string
}

// Transaction wraps a server-side transaction on a Session. Close rolls back
// unless Commit ran first, so `defer tx.Close()` makes any error path leave
// the server untouched.
type Transaction struct {
	ctx  context.Context
	s    Session
	done bool
}

func Begin(ctx context.Context, s Session) (*Transaction, error) {
	if err := s.Execute(ctx, "START TRANSACTION"); err != nil {
		return nil, cerr.Wrap(err, "could not start metadata transaction")
	}
	return &Transaction{ctx: ctx, s: s}, nil
}

func (t *Transaction) Commit() error {
	if err := t.s.Execute(t.ctx, "COMMIT"); err != nil {
		return cerr.Wrap(err, "could not commit metadata transaction")
	}
	t.done = true
	return nil
}

// Close rolls back a transaction that was never committed. Rollback is
// best-effort: the connection teardown implies it anyway.
func (t *Transaction) Close() {
	if !t.done {
		_ = t.s.Execute(t.ctx, "ROLLBACK")
		t.done = true
	}
}

// QuoteString escapes a value as a single-quoted SQL string literal.
func QuoteString(value string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		"\x00", `\0`,
		"\n", `\n`,
		"\r", `\r`,
		"\x1a", `\Z`,
	)
	return "'" + r.Replace(value) + "'"
}
