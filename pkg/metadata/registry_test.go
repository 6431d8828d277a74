package metadata

import (
	"os"
	"strings"
	"testing"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRouterFreshHost(t *testing.T) {
	s := newFakeSession()
	s.queryResults["LAST_INSERT_ID"] = []Row{row("7")}

	reg := NewRegistry(s)
	id, err := reg.RegisterRouter(testRC(), "edge-router", false)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), id)

	var sawHostInsert, sawRouterInsert bool
	for _, stmt := range s.executed {
		if strings.Contains(stmt, "INSERT INTO mysql_innodb_cluster_metadata.hosts") {
			sawHostInsert = true
		}
		if strings.Contains(stmt, "INSERT INTO mysql_innodb_cluster_metadata.routers") {
			sawRouterInsert = true
			assert.Contains(t, stmt, "'edge-router'")
		}
	}
	assert.True(t, sawHostInsert)
	assert.True(t, sawRouterInsert)
}

func TestRegisterRouterExistingHost(t *testing.T) {
	s := newFakeSession()
	s.queryResults["SELECT host_id"] = []Row{row("3")}
	s.queryResults["LAST_INSERT_ID"] = []Row{row("9")}

	reg := NewRegistry(s)
	id, err := reg.RegisterRouter(testRC(), "edge-router", false)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), id)

	for _, stmt := range s.executed {
		assert.NotContains(t, stmt, "INSERT INTO mysql_innodb_cluster_metadata.hosts")
	}
}

func TestRegisterRouterMissingInsertID(t *testing.T) {
	s := newFakeSession()
	s.queryResults["SELECT host_id"] = []Row{row("3")}

	reg := NewRegistry(s)
	id, err := reg.RegisterRouter(testRC(), "edge-router", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assigned router id")
	assert.Zero(t, id)
}

func TestRegisterRouterMissingHostInsertID(t *testing.T) {
	s := newFakeSession()

	_, err := NewRegistry(s).RegisterRouter(testRC(), "edge-router", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assigned host id")
}

func TestRegisterRouterDuplicateWithoutOverwrite(t *testing.T) {
	s := newFakeSession()
	s.execErrs["INSERT INTO mysql_innodb_cluster_metadata.routers"] =
		&ServerError{Code: 1062, Message: "duplicate entry"}

	reg := NewRegistry(s)
	_, err := reg.RegisterRouter(testRC(), "edge-router", false)
	require.Error(t, err)
	assert.True(t, IsDuplicateEntry(err))
}

func TestRegisterRouterDuplicateWithOverwrite(t *testing.T) {
	s := newFakeSession()
	s.execErrs["INSERT INTO mysql_innodb_cluster_metadata.routers"] =
		&ServerError{Code: 1062, Message: "duplicate entry"}
	s.queryResults["SELECT router_id"] = []Row{row("5")}

	reg := NewRegistry(s)
	id, err := reg.RegisterRouter(testRC(), "edge-router", true)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), id)
}

func TestCheckRouterIDFound(t *testing.T) {
	hostname, _ := os.Hostname()
	s := newFakeSession()
	s.queryResults["SELECT h.host_name"] = []Row{row(hostname)}

	require.NoError(t, NewRegistry(s).CheckRouterID(testRC(), 7))
}

func TestCheckRouterIDMissing(t *testing.T) {
	s := newFakeSession()

	err := NewRegistry(s).CheckRouterID(testRC(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "router_id 7 not found")
}

func TestCheckRouterIDDifferentHost(t *testing.T) {
	s := newFakeSession()
	s.queryResults["SELECT h.host_name"] = []Row{row("some-other-box")}

	err := NewRegistry(s).CheckRouterID(testRC(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different host")
}

func TestUpdateRouterInfo(t *testing.T) {
	s := newFakeSession()
	opts := options.Options{
		BindAddress: "0.0.0.0",
		RWEndpoint:  options.Endpoint{Port: 6446},
	}

	require.NoError(t, NewRegistry(s).UpdateRouterInfo(testRC(), 7, opts))
	require.Len(t, s.executed, 1)
	assert.Contains(t, s.executed[0], "UPDATE mysql_innodb_cluster_metadata.routers SET attributes")
	assert.Contains(t, s.executed[0], "WHERE router_id = 7")
	assert.Contains(t, s.executed[0], "6446")
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, `'plain'`, QuoteString("plain"))
	assert.Equal(t, `'it\'s'`, QuoteString("it's"))
	assert.Equal(t, `'a\\b'`, QuoteString(`a\b`))
	assert.Equal(t, `'line\nbreak'`, QuoteString("line\nbreak"))
}

func TestTransactionCommitAndRollback(t *testing.T) {
	s := newFakeSession()
	tx, err := Begin(testRC().Ctx, s)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	tx.Close() // no-op after commit
	assert.Equal(t, []string{"START TRANSACTION", "COMMIT"}, s.executed)

	s = newFakeSession()
	tx, err = Begin(testRC().Ctx, s)
	require.NoError(t, err)
	tx.Close()
	assert.Equal(t, []string{"START TRANSACTION", "ROLLBACK"}, s.executed)
}
