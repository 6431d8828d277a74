package metadata

import (
	"context"
	"database/sql"
	"strings"
)

// fakeSession is a scripted Session for tests. Query results are matched by
// substring against the statement; executed statements are recorded in order.
type fakeSession struct {
	queryResults map[string][]Row
	queryErrs    map[string]error
	execErrs     map[string]error
	executed     []string
	queried      []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		queryResults: make(map[string][]Row),
		queryErrs:    make(map[string]error),
		execErrs:     make(map[string]error),
	}
}

func row(values ...any) Row {
	r := make(Row, len(values))
	for i, v := range values {
		switch v := v.(type) {
		case nil:
			r[i] = sql.NullString{}
		case string:
			r[i] = sql.NullString{String: v, Valid: true}
		}
	}
	return r
}

func (f *fakeSession) Query(_ context.Context, stmt string) ([]Row, error) {
	f.queried = append(f.queried, stmt)
	for pattern, err := range f.queryErrs {
		if strings.Contains(stmt, pattern) {
			return nil, err
		}
	}
	for pattern, rows := range f.queryResults {
		if strings.Contains(stmt, pattern) {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeSession) QueryOne(ctx context.Context, stmt string) (Row, error) {
	rows, err := f.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (f *fakeSession) Execute(_ context.Context, stmt string) error {
	f.executed = append(f.executed, stmt)
	for pattern, err := range f.execErrs {
		if strings.Contains(stmt, pattern) {
			return err
		}
	}
	return nil
}

func (f *fakeSession) Quote(value string) string {
	return QuoteString(value)
}
