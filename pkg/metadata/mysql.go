// pkg/metadata/mysql.go

package metadata

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// MySQLSession is the production Session over a single pinned connection.
// Pinning matters: the topology query self-locates via @@server_uuid and the
// whole bootstrap runs in one server-side transaction, so every statement
// must hit the same connection, never a pool sibling.
type MySQLSession struct {
	db   *sql.DB
	conn *sql.Conn
}

// Connect dials the bootstrap server named by serverURL
// ([mysql://][user[:pass]@]host[:port]). A missing user defaults to root; a
// missing password is obtained through askSecret.
func Connect(rc *charon_io.RuntimeContext, serverURL string, askSecret charon_io.SecretReader) (*MySQLSession, error) {
	normalized := serverURL
	if !strings.Contains(normalized, "//") {
		normalized = "mysql://" + normalized
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, charon_err.NewValidationError("invalid bootstrap server URL "+serverURL, err)
	}

	user := u.User.Username()
	if user == "" {
		user = "root"
	}
	password, havePassword := u.User.Password()
	if !havePassword {
		password, err = askSecret(rc, "Please enter MySQL password for "+user)
		if err != nil {
			return nil, err
		}
	}

	host := u.Hostname()
	if host == "" || host == "localhost" {
		host = "127.0.0.1"
	}
	port := u.Port()
	if port == "" {
		port = "3306"
	}

	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + port
	cfg.Timeout = connectTimeout

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, charon_err.NewRemoteError("unable to connect to the metadata server", err)
	}
	conn, err := db.Conn(rc.Ctx)
	if err != nil {
		_ = db.Close()
		return nil, charon_err.NewRemoteError("unable to connect to the metadata server", err)
	}
	if err := conn.PingContext(rc.Ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, charon_err.NewRemoteError("unable to connect to the metadata server", err)
	}

	otelzap.Ctx(rc.Ctx).Info("Connected to metadata server",
		zap.String("host", host), zap.String("port", port), zap.String("user", user))
	return &MySQLSession{db: db, conn: conn}, nil
}

func (s *MySQLSession) Close() error {
	err := s.conn.Close()
	if derr := s.db.Close(); err == nil {
		err = derr
	}
	return err
}

func (s *MySQLSession) Query(ctx context.Context, stmt string) ([]Row, error) {
	rows, err := s.conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, wrapServerError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, wrapServerError(err)
	}

	var out []Row
	for rows.Next() {
		row := make(Row, len(cols))
		scan := make([]any, len(cols))
		for i := range row {
			scan[i] = &row[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, wrapServerError(err)
		}
		out = append(out, row)
	}
	return out, wrapServerError(rows.Err())
}

// QueryOne returns the first row, or nil when the result set is empty.
func (s *MySQLSession) QueryOne(ctx context.Context, stmt string) (Row, error) {
	rows, err := s.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *MySQLSession) Execute(ctx context.Context, stmt string) error {
	_, err := s.conn.ExecContext(ctx, stmt)
	return wrapServerError(err)
}

func (s *MySQLSession) Quote(value string) string {
	return QuoteString(value)
}

// wrapServerError maps driver errors onto the typed ServerError so callers
// can branch on server error numbers without importing the driver.
func wrapServerError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if cerr.As(err, &myErr) {
		return &ServerError{Code: myErr.Number, Message: myErr.Message}
	}
	return err
}
