// cmd/bootstrap/bootstrap.go

package bootstrap

import (
	"os"
	"strconv"
	"strings"

	provision "github.com/CodeMonkeyCybersecurity/charon/pkg/bootstrap"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_cli"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/metadata"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultSystemConf    = "/etc/charon/charonrouter.conf"
	defaultSystemKeyring = "/etc/charon/keyring"
)

var flags = struct {
	directory     string
	conf          string
	name          string
	force         bool
	quiet         bool
	basePort      int
	bindAddress   string
	useSockets    bool
	skipTCP       bool
	skipClassic   bool
	skipX         bool
	logdir        string
	rundir        string
	socketsdir    string
	keyringPath   string
	masterKeyPath string
}{}

var v = viper.New()

// BootstrapCmd provisions a router deployment against the metadata server
// reachable at the given URL.
var BootstrapCmd = &cobra.Command{
	Use:   "bootstrap <server-url>",
	Short: "Bootstrap a router deployment against a cluster metadata server",
	Long: `Bootstrap connects to the given metadata server (any cluster member),
discovers the topology, registers this router, provisions its database
account and writes the router configuration.

Without --directory the system-wide configuration is (re-)generated.
With --directory a self-contained deployment is created there, including
log and runtime directories, keyring and start/stop scripts.

Examples:
  charon bootstrap root@cluster-1:3306
  charon bootstrap --directory /opt/charon/prod --name prod cluster-1:3306
  charon bootstrap --base-port 7000 --use-sockets cluster-1:3306

All flags can also be set through CHARON_* environment variables, e.g.
CHARON_MASTER_KEY_PATH.`,
	Args: cobra.ExactArgs(1),
	RunE: charon_cli.Wrap(func(rc *charon_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		session, err := metadata.Connect(rc, args[0], charon_io.PromptSecurePassword)
		if err != nil {
			return err
		}
		defer func() { _ = session.Close() }()

		b := provision.New(provision.Params{
			Session:          session,
			AskSecret:        charon_io.PromptSecurePassword,
			RouterExecutable: executablePath(),
		})

		opts := collectOptions()
		if dir := v.GetString("directory"); dir != "" {
			return b.DirectoryDeployment(rc, dir, opts, "", v.GetString("master-key-path"))
		}
		return b.SystemDeployment(rc, v.GetString("conf"), opts,
			v.GetString("keyring-path"), v.GetString("master-key-path"))
	}),
}

func init() {
	f := BootstrapCmd.Flags()
	f.StringVarP(&flags.directory, "directory", "d", "", "Create a self-contained deployment in this directory")
	f.StringVarP(&flags.conf, "conf", "c", defaultSystemConf, "Configuration file path for system deployments")
	f.StringVar(&flags.name, "name", "", "Name for this router instance")
	f.BoolVar(&flags.force, "force", false, "Overwrite an existing deployment or router registration")
	f.BoolVar(&flags.quiet, "quiet", false, "Suppress progress and summary output")
	f.IntVar(&flags.basePort, "base-port", 0, "Allocate listening ports sequentially from this base")
	f.StringVar(&flags.bindAddress, "bind-address", "", "Address the routing endpoints bind to")
	f.BoolVar(&flags.useSockets, "use-sockets", false, "Also expose Unix socket endpoints")
	f.BoolVar(&flags.skipTCP, "skip-tcp", false, "Do not expose TCP endpoints")
	f.BoolVar(&flags.skipClassic, "skip-classic", false, "Do not expose classic protocol endpoints")
	f.BoolVar(&flags.skipX, "skip-x", false, "Do not expose X protocol endpoints")
	f.StringVar(&flags.logdir, "logdir", "", "Override the logging directory")
	f.StringVar(&flags.rundir, "rundir", "", "Override the runtime state directory")
	f.StringVar(&flags.socketsdir, "socketsdir", "", "Directory for Unix socket endpoints")
	f.StringVar(&flags.keyringPath, "keyring-path", defaultSystemKeyring, "Keyring file path for system deployments")
	f.StringVar(&flags.masterKeyPath, "master-key-path", "", "Read/store the keyring master key in this file instead of prompting")

	v.SetEnvPrefix("CHARON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	f.VisitAll(func(pf *pflag.Flag) {
		_ = v.BindPFlag(pf.Name, pf)
	})
}

// collectOptions reduces flags to the generic option map the provisioning
// engine consumes. Presence-only keys are added only when the flag was set.
func collectOptions() map[string]string {
	opts := make(map[string]string)
	if name := v.GetString("name"); name != "" {
		opts["name"] = name
	}
	if p := v.GetInt("base-port"); p != 0 {
		opts["base-port"] = strconv.Itoa(p)
	}
	if addr := v.GetString("bind-address"); addr != "" {
		opts["bind-address"] = addr
	}
	for _, key := range []string{"force", "quiet", "use-sockets", "skip-tcp", "skip-classic", "skip-x"} {
		if v.GetBool(key) {
			opts[key] = ""
		}
	}
	for _, key := range []string{"logdir", "rundir", "socketsdir"} {
		if val := v.GetString(key); val != "" {
			opts[key] = val
		}
	}
	return opts
}

func executablePath() string {
	if path, err := os.Executable(); err == nil {
		return path
	}
	return os.Args[0]
}
