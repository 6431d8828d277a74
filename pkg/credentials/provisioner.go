// Package credentials creates the dedicated database account a router
// instance uses against the metadata server, and keeps its password in the
// encrypted keyring.
package credentials

import (
	"strconv"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/crypto"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/keyring"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/metadata"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	// AccountNamePrefix plus the decimal router id forms the account name,
	// so reconfiguration with the same id rotates the same account.
	AccountNamePrefix = "mysql_innodb_cluster_router"

	// KeyringAttribute is the fixed attribute key the secret is stored under.
	KeyringAttribute = "password"

	passwordLength = 16
)

// Entry is a provisioned credential, held in memory only until the keyring
// flush makes it durable.
type Entry struct {
	AccountName string
	Secret      string
}

// AccountName derives the per-router account name.
func AccountName(routerID uint32) string {
	return AccountNamePrefix + strconv.FormatUint(uint64(routerID), 10)
}

// Provision generates a fresh high-entropy password for the router's
// account, stores it in the keyring and flushes the keyring to durable
// media. A flush failure is fatal: the in-memory copy must never be the only
// one assumed durable.
func Provision(rc *charon_io.RuntimeContext, routerID uint32, ring *keyring.Keyring) (Entry, error) {
	secret, err := crypto.GeneratePassword(passwordLength)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{AccountName: AccountName(routerID), Secret: secret}

	ring.Store(entry.AccountName, KeyringAttribute, entry.Secret)
	if err := ring.Flush(); err != nil {
		return Entry{}, charon_err.NewIOError("error storing encrypted password to disk", err)
	}

	otelzap.Ctx(rc.Ctx).Info("Provisioned router credential",
		zap.String("account", entry.AccountName))
	return entry, nil
}

// ApplyAccount drops and recreates the router's database account with
// least-privilege grants: read access to the metadata schema and to the
// replication membership view, nothing else.
//
// The account is always scoped to the wildcard host. Restricting it to the
// client's address is unreliable in practice (NAT, multi-homed hosts,
// dynamic IPs); the account is per-instance with an unshared password, which
// bounds the exposure.
func ApplyAccount(rc *charon_io.RuntimeContext, s metadata.Session, entry Entry) error {
	account := entry.AccountName + "@" + s.Quote("%")

	statements := []string{
		"DROP USER IF EXISTS " + account,
		"CREATE USER " + account + " IDENTIFIED BY " + s.Quote(entry.Secret),
		"GRANT SELECT ON mysql_innodb_cluster_metadata.* TO " + account,
		"GRANT SELECT ON performance_schema.replication_group_members TO " + account,
	}

	// DDL is not idempotently retryable; any statement failure rolls back
	// best-effort and aborts.
	for _, stmt := range statements {
		if err := s.Execute(rc.Ctx, stmt); err != nil {
			_ = s.Execute(rc.Ctx, "ROLLBACK")
			return charon_err.NewRemoteError(
				"error creating MySQL account for router", err)
		}
	}
	return nil
}
