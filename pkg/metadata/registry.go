// pkg/metadata/registry.go

package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/options"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Registry manages router identities in the metadata store. A registered
// identity is the durable (name, id) pair a deployment keeps across
// reconfigurations; ids are server-assigned and never reused for a different
// name on the same host.
type Registry struct {
	s Session
}

func NewRegistry(s Session) *Registry {
	return &Registry{s: s}
}

// CheckRouterID verifies that a previously recorded router id still exists
// upstream and belongs to this host. A failed check means the identity was
// deleted server-side; callers fall back to fresh registration.
func (r *Registry) CheckRouterID(rc *charon_io.RuntimeContext, routerID uint32) error {
	row, err := r.s.QueryOne(rc.Ctx,
		"SELECT h.host_name FROM mysql_innodb_cluster_metadata.routers r"+
			" JOIN mysql_innodb_cluster_metadata.hosts h ON r.host_id = h.host_id"+
			" WHERE r.router_id = "+strconv.FormatUint(uint64(routerID), 10))
	if err != nil {
		return cerr.Wrapf(err, "error checking router_id %d in metadata", routerID)
	}
	if row == nil {
		return cerr.Newf("router_id %d not found in metadata", routerID)
	}
	hostname, _ := os.Hostname()
	if row[0].Valid && row[0].String != "" && row[0].String != hostname {
		return cerr.Newf("router_id %d is associated with a different host ('%s')", routerID, row[0].String)
	}
	return nil
}

// RegisterRouter records a new router identity named routerName for this
// host and returns the server-assigned id. A uniqueness violation surfaces
// as a ServerError so callers can translate it; with overwrite set the
// existing identity is adopted instead.
func (r *Registry) RegisterRouter(rc *charon_io.RuntimeContext, routerName string, overwrite bool) (uint32, error) {
	hostID, err := r.ensureHost(rc)
	if err != nil {
		return 0, err
	}

	insert := fmt.Sprintf(
		"INSERT INTO mysql_innodb_cluster_metadata.routers (router_name, host_id) VALUES (%s, %d)",
		r.s.Quote(routerName), hostID)
	if err := r.s.Execute(rc.Ctx, insert); err != nil {
		if !IsDuplicateEntry(err) || !overwrite {
			return 0, err
		}
		row, qerr := r.s.QueryOne(rc.Ctx, fmt.Sprintf(
			"SELECT router_id FROM mysql_innodb_cluster_metadata.routers"+
				" WHERE router_name = %s AND host_id = %d",
			r.s.Quote(routerName), hostID))
		if qerr != nil || row == nil {
			return 0, cerr.Wrapf(err, "could not look up existing router '%s' for overwrite", routerName)
		}
		return parseRouterID(row[0].String)
	}

	row, err := r.s.QueryOne(rc.Ctx, "SELECT LAST_INSERT_ID()")
	if err != nil {
		return 0, cerr.Wrap(err, "could not read assigned router id")
	}
	if row == nil {
		return 0, cerr.New("could not read assigned router id")
	}
	id, err := parseRouterID(row[0].String)
	if err != nil {
		return 0, err
	}
	otelzap.Ctx(rc.Ctx).Info("Registered router instance",
		zap.String("name", routerName), zap.Uint32("router_id", id))
	return id, nil
}

// UpdateRouterInfo writes the endpoint/option summary back to the metadata
// store as the router's attributes.
func (r *Registry) UpdateRouterInfo(rc *charon_io.RuntimeContext, routerID uint32, opts options.Options) error {
	attrs, err := json.Marshal(map[string]any{
		"version":     "1",
		"RWEndpoint":  endpointAttr(opts.RWEndpoint),
		"ROEndpoint":  endpointAttr(opts.ROEndpoint),
		"RWXEndpoint": endpointAttr(opts.RWXEndpoint),
		"ROXEndpoint": endpointAttr(opts.ROXEndpoint),
		"MultiMaster": opts.MultiMaster,
		"BindAddress": opts.BindAddress,
	})
	if err != nil {
		return cerr.Wrap(err, "serializing router attributes")
	}
	stmt := fmt.Sprintf(
		"UPDATE mysql_innodb_cluster_metadata.routers SET attributes = %s WHERE router_id = %d",
		r.s.Quote(string(attrs)), routerID)
	if err := r.s.Execute(rc.Ctx, stmt); err != nil {
		return cerr.Wrapf(err, "error updating router info for router_id %d", routerID)
	}
	return nil
}

func (r *Registry) ensureHost(rc *charon_io.RuntimeContext) (uint64, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return 0, cerr.Wrap(err, "could not determine local hostname")
	}

	row, err := r.s.QueryOne(rc.Ctx,
		"SELECT host_id FROM mysql_innodb_cluster_metadata.hosts WHERE host_name = "+r.s.Quote(hostname))
	if err != nil {
		return 0, cerr.Wrap(err, "error looking up host in metadata")
	}
	if row != nil {
		return strconv.ParseUint(row[0].String, 10, 64)
	}

	if err := r.s.Execute(rc.Ctx, fmt.Sprintf(
		"INSERT INTO mysql_innodb_cluster_metadata.hosts (host_name, location) VALUES (%s, '')",
		r.s.Quote(hostname))); err != nil {
		return 0, cerr.Wrap(err, "error registering host in metadata")
	}
	row, err = r.s.QueryOne(rc.Ctx, "SELECT LAST_INSERT_ID()")
	if err != nil {
		return 0, cerr.Wrap(err, "could not read assigned host id")
	}
	if row == nil {
		return 0, cerr.New("could not read assigned host id")
	}
	return strconv.ParseUint(row[0].String, 10, 64)
}

func parseRouterID(raw string) (uint32, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, cerr.Wrapf(err, "metadata returned invalid router id '%s'", raw)
	}
	return uint32(id), nil
}

func endpointAttr(ep options.Endpoint) map[string]any {
	return map[string]any{"port": ep.Port, "socket": ep.Socket}
}
