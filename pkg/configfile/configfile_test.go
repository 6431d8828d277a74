package configfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRC() *charon_io.RuntimeContext {
	return charon_io.NewContext(context.Background(), "test")
}

func sampleSpec() Spec {
	return Spec{
		RouterID:        4,
		RouterName:      "edge-router",
		ServerAddresses: "mysql://db1:3306,mysql://db2:3306",
		ClusterName:     "prodcluster",
		ReplicasetName:  "default",
		Username:        "mysql_innodb_cluster_router4",
		Options: options.Options{
			BindAddress: "0.0.0.0",
			RWEndpoint:  options.Endpoint{Port: 6446},
			ROEndpoint:  options.Endpoint{Port: 6447},
			RWXEndpoint: options.Endpoint{Port: 64460},
			ROXEndpoint: options.Endpoint{Port: 64470},
			KeyringPath: "/deploy/run/keyring",
		},
	}
}

func TestRenderSections(t *testing.T) {
	body := Render(sampleSpec())

	assert.Contains(t, body, "[DEFAULT]\n")
	assert.Contains(t, body, "name=edge-router\n")
	assert.Contains(t, body, "keyring_path=/deploy/run/keyring\n")
	assert.Contains(t, body, "[logger]\nlevel = INFO\n")
	assert.Contains(t, body, "[metadata_cache:prodcluster]\n")
	assert.Contains(t, body, "router_id=4\n")
	assert.Contains(t, body, "bootstrap_server_addresses=mysql://db1:3306,mysql://db2:3306\n")
	assert.Contains(t, body, "user=mysql_innodb_cluster_router4\n")
	assert.Contains(t, body, "metadata_cluster=prodcluster\n")
	assert.Contains(t, body, "ttl=300\n")

	assert.Contains(t, body, "[routing:prodcluster_default_rw]\n")
	assert.Contains(t, body, "[routing:prodcluster_default_ro]\n")
	assert.Contains(t, body, "[routing:prodcluster_default_x_rw]\n")
	assert.Contains(t, body, "[routing:prodcluster_default_x_ro]\n")
	assert.Contains(t, body, "destinations=metadata-cache://prodcluster/default?role=PRIMARY\n")
	assert.Contains(t, body, "destinations=metadata-cache://prodcluster/default?role=SECONDARY\n")
}

func TestRenderOmitsAbsentEndpoints(t *testing.T) {
	spec := sampleSpec()
	spec.Options.ROEndpoint = options.Endpoint{}
	spec.Options.ROXEndpoint = options.Endpoint{}
	body := Render(spec)

	assert.NotContains(t, body, "_default_ro]")
	assert.NotContains(t, body, "_x_ro]")
	assert.NotContains(t, body, "role=SECONDARY")
}

func TestRenderSocketEndpoints(t *testing.T) {
	spec := sampleSpec()
	spec.Options.SocketsDir = "/deploy"
	spec.Options.RWEndpoint = options.Endpoint{Socket: options.RWSocketName}
	body := Render(spec)

	assert.Contains(t, body, "socket=/deploy/mysql.sock\n")
}

func TestRenderIsDeterministic(t *testing.T) {
	assert.Equal(t, Render(sampleSpec()), Render(sampleSpec()))
}

func TestFinishWritesAtomicallyAndHardens(t *testing.T) {
	rc := testRC()
	target := filepath.Join(t.TempDir(), DefaultFileName)

	w, err := NewPendingWrite(target)
	require.NoError(t, err)
	assert.FileExists(t, w.TempPath())
	require.NoError(t, w.Write("body\n"))

	backedUp, err := w.Finish(rc)
	require.NoError(t, err)
	assert.False(t, backedUp)
	assert.NoFileExists(t, target+".tmp")

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "body\n", string(data))
}

func TestFinishBacksUpDifferingConfig(t *testing.T) {
	rc := testRC()
	target := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(target, []byte("old config\n"), 0o600))

	w, err := NewPendingWrite(target)
	require.NoError(t, err)
	require.NoError(t, w.Write("new config\n"))
	backedUp, err := w.Finish(rc)
	require.NoError(t, err)
	assert.True(t, backedUp)

	bak, err := os.ReadFile(target + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "old config\n", string(bak))

	info, err := os.Stat(target + ".bak")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFinishSkipsBackupWhenIdentical(t *testing.T) {
	rc := testRC()
	target := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(target, []byte("same\n"), 0o600))

	w, err := NewPendingWrite(target)
	require.NoError(t, err)
	require.NoError(t, w.Write("same\n"))
	backedUp, err := w.Finish(rc)
	require.NoError(t, err)
	assert.False(t, backedUp)
	assert.NoFileExists(t, target+".bak")
}

func TestNewPendingWriteFailsFast(t *testing.T) {
	_, err := NewPendingWrite(filepath.Join(t.TempDir(), "missing-dir", "x.conf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not open")
}

func TestDiscardRemovesTemp(t *testing.T) {
	target := filepath.Join(t.TempDir(), DefaultFileName)
	w, err := NewPendingWrite(target)
	require.NoError(t, err)
	w.Discard()
	assert.NoFileExists(t, w.TempPath())
	assert.NoFileExists(t, target)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRouterIDRecovered(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"# generated",
		"[DEFAULT]",
		"name=edge-router",
		"",
		"[metadata_cache:prodcluster]",
		"router_id=12",
		"metadata_cluster=prodcluster",
		"",
	}, "\n"))

	id, err := RouterIDForCluster(testRC(), path, "prodcluster", false)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), id)
}

func TestRouterIDMissingWarnsAndReturnsZero(t *testing.T) {
	path := writeConfig(t, "[metadata_cache:prodcluster]\nmetadata_cluster=prodcluster\n")

	id, err := RouterIDForCluster(testRC(), path, "prodcluster", false)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestRouterIDInvalidIsFatal(t *testing.T) {
	path := writeConfig(t, "[metadata_cache:prodcluster]\nmetadata_cluster=prodcluster\nrouter_id=banana\n")

	_, err := RouterIDForCluster(testRC(), path, "prodcluster", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid router_id")
}

func TestMultipleMetadataSectionsUnsupported(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"[metadata_cache:a]",
		"metadata_cluster=a",
		"[metadata_cache:b]",
		"metadata_cluster=b",
	}, "\n"))

	_, err := RouterIDForCluster(testRC(), path, "a", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple metadata_cache sections")
}

func TestDivergingClusterNeedsForce(t *testing.T) {
	path := writeConfig(t, "[metadata_cache:clusterA]\nmetadata_cluster=clusterA\nrouter_id=3\n")

	_, err := RouterIDForCluster(testRC(), path, "clusterB", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clusterA")
	assert.Contains(t, err.Error(), "--force")

	id, err := RouterIDForCluster(testRC(), path, "clusterB", true)
	require.NoError(t, err)
	assert.Zero(t, id)
}
