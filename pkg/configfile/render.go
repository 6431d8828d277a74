// Package configfile renders the router configuration and replaces it on disk
// through a crash-safe write/backup/rename protocol.
package configfile

import (
	"fmt"
	"strings"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/options"
)

// DefaultFileName is the configuration file name inside a directory
// deployment.
const DefaultFileName = "charonrouter.conf"

// Spec is everything the rendered configuration depends on.
type Spec struct {
	RouterID        uint32
	RouterName      string
	ServerAddresses string // comma-joined bootstrap URI list
	ClusterName     string
	ReplicasetName  string
	Username        string
	Options         options.Options
}

// Render produces the configuration file body: a [DEFAULT] section, the
// logger section, one metadata_cache section keyed by cluster name, and up to
// four routing sections depending on which endpoints are present.
func Render(spec Spec) string {
	var b strings.Builder
	b.WriteString("# File automatically generated during charon bootstrap\n")

	b.WriteString("[DEFAULT]\n")
	if spec.RouterName != "" {
		fmt.Fprintf(&b, "name=%s\n", spec.RouterName)
	}
	if spec.Options.OverrideLogdir != "" {
		fmt.Fprintf(&b, "logging_folder=%s\n", spec.Options.OverrideLogdir)
	}
	if spec.Options.OverrideRundir != "" {
		fmt.Fprintf(&b, "runtime_folder=%s\n", spec.Options.OverrideRundir)
	}
	if spec.Options.KeyringPath != "" {
		fmt.Fprintf(&b, "keyring_path=%s\n", spec.Options.KeyringPath)
	}
	if spec.Options.MasterKeyPath != "" {
		fmt.Fprintf(&b, "master_key_path=%s\n", spec.Options.MasterKeyPath)
	}

	fmt.Fprintf(&b, "\n[logger]\nlevel = INFO\n\n")

	fmt.Fprintf(&b, "[metadata_cache:%s]\n", spec.ClusterName)
	fmt.Fprintf(&b, "router_id=%d\n", spec.RouterID)
	fmt.Fprintf(&b, "bootstrap_server_addresses=%s\n", spec.ServerAddresses)
	fmt.Fprintf(&b, "user=%s\n", spec.Username)
	fmt.Fprintf(&b, "metadata_cluster=%s\n", spec.ClusterName)
	b.WriteString("ttl=300\n\n")

	key := spec.ClusterName + "_" + spec.ReplicasetName
	writeRouting(&b, spec, key+"_rw", spec.Options.RWEndpoint, "PRIMARY", "read-write", "classic")
	writeRouting(&b, spec, key+"_ro", spec.Options.ROEndpoint, "SECONDARY", "read-only", "classic")
	writeRouting(&b, spec, key+"_x_rw", spec.Options.RWXEndpoint, "PRIMARY", "read-write", "x")
	writeRouting(&b, spec, key+"_x_ro", spec.Options.ROXEndpoint, "SECONDARY", "read-only", "x")

	return b.String()
}

func writeRouting(b *strings.Builder, spec Spec, key string, ep options.Endpoint, role, mode, protocol string) {
	if !ep.Present() {
		return
	}
	fmt.Fprintf(b, "[routing:%s]\n", key)
	fmt.Fprintf(b, "%s\n", endpointOption(spec.Options, ep))
	fmt.Fprintf(b, "destinations=metadata-cache://%s/%s?role=%s\n",
		spec.ClusterName, spec.ReplicasetName, role)
	fmt.Fprintf(b, "mode=%s\n", mode)
	fmt.Fprintf(b, "protocol=%s\n\n", protocol)
}

func endpointOption(opts options.Options, ep options.Endpoint) string {
	var parts []string
	if ep.Port > 0 {
		bind := opts.BindAddress
		if bind == "" {
			bind = "0.0.0.0"
		}
		parts = append(parts, "bind_address="+bind, fmt.Sprintf("bind_port=%d", ep.Port))
	}
	if ep.Socket != "" {
		parts = append(parts, "socket="+opts.SocketsDir+"/"+ep.Socket)
	}
	return strings.Join(parts, "\n")
}
