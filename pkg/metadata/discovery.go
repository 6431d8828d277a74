// pkg/metadata/discovery.go

package metadata

import (
	"strings"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// TopologySnapshot is the reduced view of the cluster a bootstrap run
// provisions against: exactly one cluster, one replicaset.
type TopologySnapshot struct {
	ClusterName    string
	ReplicasetName string
	MultiMaster    bool
	Servers        []string // bootstrap URIs in row order
}

// ServerList returns the comma-joined bootstrap address list.
func (t *TopologySnapshot) ServerList() string {
	return strings.Join(t.Servers, ",")
}

// The topology query self-locates by server identity (@@server_uuid), not by
// address: the bootstrap connection may be to any member.
const topologyQuery = "SELECT " +
	"F.cluster_name, " +
	"R.replicaset_name, " +
	"R.topology_type, " +
	"JSON_UNQUOTE(JSON_EXTRACT(I.addresses, '$.mysqlClassic')) " +
	"FROM " +
	"mysql_innodb_cluster_metadata.clusters AS F, " +
	"mysql_innodb_cluster_metadata.instances AS I, " +
	"mysql_innodb_cluster_metadata.replicasets AS R " +
	"WHERE " +
	"R.replicaset_id = " +
	"(SELECT replicaset_id FROM mysql_innodb_cluster_metadata.instances WHERE " +
	"mysql_server_uuid = @@server_uuid)" +
	"AND " +
	"I.replicaset_id = R.replicaset_id " +
	"AND " +
	"R.cluster_id = F.cluster_id"

// Discover queries the metadata schema and reduces the rows into a single
// topology snapshot. Rows naming a second cluster or replicaset are a fatal
// inconsistency, never a silent merge.
func Discover(rc *charon_io.RuntimeContext, s Session) (*TopologySnapshot, error) {
	rows, err := s.Query(rc.Ctx, topologyQuery)
	if err != nil {
		return nil, charon_err.NewRemoteError("error querying metadata", err)
	}

	snapshot := &TopologySnapshot{}
	for _, row := range rows {
		if len(row) < 4 {
			return nil, cerr.Newf("malformed metadata row: %d columns", len(row))
		}
		cluster := row[0].String
		replicaset := row[1].String

		if snapshot.ClusterName == "" {
			snapshot.ClusterName = cluster
		} else if snapshot.ClusterName != cluster {
			return nil, charon_err.NewRemoteError("metadata contains more than one cluster", nil)
		}
		if snapshot.ReplicasetName == "" {
			snapshot.ReplicasetName = replicaset
		} else if snapshot.ReplicasetName != replicaset {
			return nil, charon_err.NewRemoteError("metadata contains more than one replica-set", nil)
		}

		if row[2].Valid {
			switch row[2].String {
			case "mm":
				snapshot.MultiMaster = true
			case "pm":
				snapshot.MultiMaster = false
			default:
				return nil, charon_err.NewRemoteError(
					"unknown topology type in metadata: "+row[2].String, nil)
			}
		}

		// A null address column yields an empty segment, not a failure.
		snapshot.Servers = append(snapshot.Servers, "mysql://"+row[3].String)
	}

	if snapshot.ClusterName == "" {
		return nil, charon_err.NewRemoteError("no clusters defined in metadata server", nil)
	}

	otelzap.Ctx(rc.Ctx).Info("Discovered cluster topology",
		zap.String("cluster", snapshot.ClusterName),
		zap.String("replicaset", snapshot.ReplicasetName),
		zap.Bool("multi_master", snapshot.MultiMaster),
		zap.Int("members", len(snapshot.Servers)))
	return snapshot, nil
}
