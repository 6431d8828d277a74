package credentials

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/keyring"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/metadata"
	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSession struct {
	executed []string
	failOn   string
}

func (r *recordingSession) Query(context.Context, string) ([]metadata.Row, error) {
	return nil, nil
}

func (r *recordingSession) QueryOne(context.Context, string) (metadata.Row, error) {
	return nil, nil
}

func (r *recordingSession) Execute(_ context.Context, stmt string) error {
	r.executed = append(r.executed, stmt)
	if r.failOn != "" && strings.Contains(stmt, r.failOn) {
		return cerr.New("access denied")
	}
	return nil
}

func (r *recordingSession) Quote(value string) string {
	return metadata.QuoteString(value)
}

func testRC() *charon_io.RuntimeContext {
	return charon_io.NewContext(context.Background(), "test")
}

func testKeyring(t *testing.T) *keyring.Keyring {
	t.Helper()
	ring, err := keyring.Init(testRC(), filepath.Join(t.TempDir(), "keyring"), "key", true)
	require.NoError(t, err)
	return ring
}

func TestAccountName(t *testing.T) {
	assert.Equal(t, "mysql_innodb_cluster_router42", AccountName(42))
}

func TestProvisionStoresAndFlushes(t *testing.T) {
	rc := testRC()
	ring := testKeyring(t)

	entry, err := Provision(rc, 42, ring)
	require.NoError(t, err)
	assert.Equal(t, "mysql_innodb_cluster_router42", entry.AccountName)
	assert.Len(t, entry.Secret, 16)

	stored, ok := ring.Fetch(entry.AccountName, KeyringAttribute)
	require.True(t, ok)
	assert.Equal(t, entry.Secret, stored)
}

func TestProvisionRotatesSecret(t *testing.T) {
	rc := testRC()
	ring := testKeyring(t)

	first, err := Provision(rc, 1, ring)
	require.NoError(t, err)
	second, err := Provision(rc, 1, ring)
	require.NoError(t, err)
	assert.Equal(t, first.AccountName, second.AccountName)
	assert.NotEqual(t, first.Secret, second.Secret)
}

func TestApplyAccountStatementOrder(t *testing.T) {
	s := &recordingSession{}
	entry := Entry{AccountName: "mysql_innodb_cluster_router7", Secret: "pw"}

	require.NoError(t, ApplyAccount(testRC(), s, entry))
	require.Len(t, s.executed, 4)
	assert.True(t, strings.HasPrefix(s.executed[0], "DROP USER IF EXISTS mysql_innodb_cluster_router7@'%'"))
	assert.True(t, strings.HasPrefix(s.executed[1], "CREATE USER mysql_innodb_cluster_router7@'%' IDENTIFIED BY"))
	assert.Contains(t, s.executed[2], "GRANT SELECT ON mysql_innodb_cluster_metadata.*")
	assert.Contains(t, s.executed[3], "GRANT SELECT ON performance_schema.replication_group_members")
}

func TestApplyAccountFailureRollsBack(t *testing.T) {
	s := &recordingSession{failOn: "CREATE USER"}
	entry := Entry{AccountName: "mysql_innodb_cluster_router7", Secret: "pw"}

	err := ApplyAccount(testRC(), s, entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error creating MySQL account for router")

	// The failing statement is followed by a best-effort rollback and no
	// further DDL.
	last := s.executed[len(s.executed)-1]
	assert.Equal(t, "ROLLBACK", last)
	for _, stmt := range s.executed {
		assert.NotContains(t, stmt, "GRANT")
	}
}

func TestApplyAccountQuotesSecret(t *testing.T) {
	s := &recordingSession{}
	entry := Entry{AccountName: "mysql_innodb_cluster_router7", Secret: "it's;complicated"}

	require.NoError(t, ApplyAccount(testRC(), s, entry))
	assert.Contains(t, s.executed[1], `'it\'s;complicated'`)
}
