// Package bootstrap sequences a full router provisioning run: topology
// discovery, identity registration, credential provisioning, metadata
// write-back and the atomic configuration write, all guarded so any failure
// unwinds the filesystem state the attempt created.
package bootstrap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/configfile"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/credentials"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/guard"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/interaction"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/keyring"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/metadata"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/options"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	// SystemRouterName is the implicit name of a system deployment and is
	// reserved: directory deployments may not claim it.
	SystemRouterName = "system"

	// DefaultKeyringFileName is the keyring file name inside a directory
	// deployment's run directory.
	DefaultKeyringFileName = "keyring"

	// PidFileName is the pid file the start/stop scripts coordinate on.
	PidFileName = "charonrouter.pid"

	maxRouterNameLength = 255
)

// Params wires a Bootstrapper. Everything that used to be ambient process
// state (the executable path, the output stream, the prompt) is explicit
// here.
type Params struct {
	Session metadata.Session

	// AskSecret obtains secrets from the operator; tests and callers with
	// non-interactive needs inject their own.
	AskSecret charon_io.SecretReader

	// RouterExecutable is the binary the generated start script launches.
	RouterExecutable string

	// Out receives user-facing progress output. Defaults to os.Stdout.
	Out io.Writer
}

type Bootstrapper struct {
	session   metadata.Session
	askSecret charon_io.SecretReader
	execPath  string
	out       io.Writer
}

func New(p Params) *Bootstrapper {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	ask := p.AskSecret
	if ask == nil {
		ask = charon_io.PromptSecurePassword
	}
	return &Bootstrapper{
		session:   p.Session,
		askSecret: ask,
		execPath:  p.RouterExecutable,
		out:       out,
	}
}

// SystemDeployment (re-)bootstraps the shared system-wide configuration
// file. It owns no directories: only the configuration file itself and its
// temporary sibling are written.
func (b *Bootstrapper) SystemDeployment(rc *charon_io.RuntimeContext, configPath string, userOptions map[string]string, keyringPath, masterKeyPath string) (err error) {
	opts := copyOptions(userOptions)

	routerName := opts["name"]
	if routerName != "" {
		if err := validateRouterName(routerName, false); err != nil {
			return err
		}
	} else {
		routerName = SystemRouterName
	}
	if _, ok := opts["socketsdir"]; !ok {
		opts["socketsdir"] = "/tmp"
	}

	g := guard.New(rc.Log)
	defer g.Unwind()

	// Opening the temporary file first surfaces permission and disk-space
	// problems before any remote state is touched.
	pw, err := configfile.NewPendingWrite(configPath)
	if err != nil {
		return err
	}
	g.TrackFile(pw.TempPath())

	ring, err := b.initKeyring(rc, keyringPath, masterKeyPath)
	if err != nil {
		return err
	}

	if err := b.deploy(rc, deployment{
		pending:       pw,
		configPath:    configPath,
		routerName:    routerName,
		userOptions:   opts,
		keyringPath:   keyringPath,
		masterKeyPath: masterKeyPath,
		ring:          ring,
		directory:     false,
	}); err != nil {
		return err
	}

	g.Commit()
	return nil
}

// DirectoryDeployment creates a self-contained deployment in directory: the
// directory itself, log/ and run/, the keyring, the configuration file and
// start/stop scripts. Any failure removes everything this attempt created.
func (b *Bootstrapper) DirectoryDeployment(rc *charon_io.RuntimeContext, directory string, userOptions map[string]string, keyringFileName, masterKeyPath string) (err error) {
	opts := copyOptions(userOptions)
	_, force := opts["force"]

	routerName := opts["name"]
	if routerName != "" {
		if err := validateRouterName(routerName, true); err != nil {
			return err
		}
	}
	if keyringFileName == "" {
		keyringFileName = DefaultKeyringFileName
	}

	g := guard.New(rc.Log)
	defer g.Unwind()

	// Resolve before anything is created or tracked: the unwind path must
	// not depend on the working directory at teardown time.
	directory, err = filepath.Abs(directory)
	if err != nil {
		return charon_err.NewIOError("could not resolve deployment directory "+directory, err)
	}
	if _, serr := os.Stat(directory); os.IsNotExist(serr) {
		if err := os.Mkdir(directory, 0o700); err != nil {
			return charon_err.NewIOError("could not create deployment directory "+directory, err)
		}
		g.TrackDirectory(directory, true)
	}

	configPath := filepath.Join(directory, configfile.DefaultFileName)
	if !fileExists(configPath) && !force {
		empty, err := directoryEmpty(directory)
		if err != nil {
			return err
		}
		if !empty {
			return charon_err.NewConflictError(
				"directory "+directory+" already contains files",
				"pass --force to bootstrap into a non-empty directory")
		}
	}

	if _, ok := opts["logdir"]; !ok {
		opts["logdir"] = filepath.Join(directory, "log")
	}
	if _, ok := opts["rundir"]; !ok {
		opts["rundir"] = filepath.Join(directory, "run")
	}
	if _, ok := opts["socketsdir"]; !ok {
		opts["socketsdir"] = directory
	}

	for _, dir := range []string{opts["logdir"], opts["rundir"]} {
		created, err := ensureDirectory(dir)
		if err != nil {
			return err
		}
		if created {
			g.TrackDirectory(dir, false)
		}
	}

	pw, err := configfile.NewPendingWrite(configPath)
	if err != nil {
		return err
	}
	g.TrackFile(pw.TempPath())

	keyringPath := filepath.Join(opts["rundir"], keyringFileName)

	// When a master key file is requested, all work happens against a
	// temporary copy; only a fully successful bootstrap moves it into its
	// final location.
	var ring *keyring.Keyring
	tmpMasterKey := ""
	if masterKeyPath != "" {
		tmpMasterKey = masterKeyPath + ".tmp"
		g.TrackFile(tmpMasterKey)
		if fileExists(masterKeyPath) {
			if err := copyFile(masterKeyPath, tmpMasterKey); err != nil {
				return err
			}
		}
		ring, err = keyring.InitWithMasterKeyFile(rc, keyringPath, tmpMasterKey, true)
	} else {
		ring, err = b.initKeyring(rc, keyringPath, "")
	}
	if err != nil {
		return err
	}

	if err := b.deploy(rc, deployment{
		pending:       pw,
		configPath:    configPath,
		routerName:    routerName,
		userOptions:   opts,
		keyringPath:   keyringPath,
		masterKeyPath: masterKeyPath,
		ring:          ring,
		directory:     true,
	}); err != nil {
		return err
	}

	if tmpMasterKey != "" && fileExists(tmpMasterKey) {
		if err := os.Rename(tmpMasterKey, masterKeyPath); err != nil {
			return charon_err.NewIOError(
				"could not move keyring file '"+tmpMasterKey+"' to its final location", err)
		}
		g.Untrack(tmpMasterKey)
	}

	if err := WriteStartScript(rc, directory, masterKeyPath == "", b.execPath); err != nil {
		return err
	}
	if err := WriteStopScript(rc, directory); err != nil {
		return err
	}

	g.Commit()
	return nil
}

// deployment collects the state shared by both entry modes once the target
// configuration path and option set are established.
type deployment struct {
	pending       *configfile.PendingWrite
	configPath    string
	routerName    string
	userOptions   map[string]string
	keyringPath   string
	masterKeyPath string
	ring          *keyring.Keyring
	directory     bool
}

// deploy runs the transactional core. The configuration rename happens
// before the metadata transaction commits: a crash in between leaves a new
// config on disk with the server-side registration rolled back, which the
// next bootstrap self-heals by re-registering. See DESIGN.md for why this
// ordering was kept.
func (b *Bootstrapper) deploy(rc *charon_io.RuntimeContext, d deployment) error {
	log := otelzap.Ctx(rc.Ctx)
	_, force := d.userOptions["force"]
	_, quiet := d.userOptions["quiet"]

	finished := false
	defer func() {
		if !finished {
			d.pending.Discard()
		}
	}()

	tx, err := metadata.Begin(rc.Ctx, b.session)
	if err != nil {
		return err
	}
	defer tx.Close()

	snapshot, err := metadata.Discover(rc, b.session)
	if err != nil {
		return err
	}

	var routerID uint32
	if fileExists(d.configPath) {
		routerID, err = configfile.RouterIDForCluster(rc, d.configPath, snapshot.ClusterName, force)
		if err != nil {
			return err
		}
	}

	if !quiet {
		verb := "Bootstrapping"
		if routerID > 0 {
			verb = "Reconfiguring"
		}
		if d.directory {
			fmt.Fprintf(b.out, "\n%s charon router instance at %s...\n", verb, filepath.Dir(d.configPath))
		} else {
			fmt.Fprintf(b.out, "\n%s system charon router instance...\n", verb)
		}
	}

	registry := metadata.NewRegistry(b.session)

	// A recovered identity is revalidated upstream; if it was deleted
	// server-side we fall back to fresh registration instead of aborting.
	if routerID > 0 {
		if err := registry.CheckRouterID(rc, routerID); err != nil {
			log.Warn("Recorded router identity no longer valid, re-registering",
				zap.Uint32("router_id", routerID), zap.Error(err))
			routerID = 0
		}
	}
	if routerID == 0 {
		routerID, err = registry.RegisterRouter(rc, d.routerName, force)
		if err != nil {
			if metadata.IsDuplicateEntry(err) {
				return charon_err.NewConflictError(
					"a router instance named '"+d.routerName+"' has been previously configured in this host",
					"if that instance no longer exists, pass --force to overwrite it")
			}
			return charon_err.NewRemoteError("while registering router instance in metadata server", err)
		}
	}

	resolved, err := options.Resolve(d.userOptions, snapshot.MultiMaster)
	if err != nil {
		return err
	}
	resolved.KeyringPath = d.keyringPath
	resolved.MasterKeyPath = d.masterKeyPath

	entry, err := credentials.Provision(rc, routerID, d.ring)
	if err != nil {
		return err
	}
	if err := credentials.ApplyAccount(rc, b.session, entry); err != nil {
		return err
	}

	if err := registry.UpdateRouterInfo(rc, routerID, resolved); err != nil {
		return err
	}

	body := configfile.Render(configfile.Spec{
		RouterID:        routerID,
		RouterName:      d.routerName,
		ServerAddresses: snapshot.ServerList(),
		ClusterName:     snapshot.ClusterName,
		ReplicasetName:  snapshot.ReplicasetName,
		Username:        entry.AccountName,
		Options:         resolved,
	})
	if err := d.pending.Write(body); err != nil {
		return err
	}
	backedUp, err := d.pending.Finish(rc)
	if err != nil {
		return err
	}
	finished = true
	if backedUp && !quiet {
		fmt.Fprintf(b.out, "\nExisting configurations backed up to %s.bak\n", d.configPath)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if !quiet {
		b.printSummary(d.routerName, snapshot, resolved)
	}
	return nil
}

func (b *Bootstrapper) initKeyring(rc *charon_io.RuntimeContext, keyringPath, masterKeyPath string) (*keyring.Keyring, error) {
	if masterKeyPath != "" {
		return keyring.InitWithMasterKeyFile(rc, keyringPath, masterKeyPath, true)
	}
	masterKey, err := interaction.ObtainMasterKey(rc, keyringPath, fileExists(keyringPath), b.askSecret)
	if err != nil {
		return nil, err
	}
	return keyring.Init(rc, keyringPath, masterKey, true)
}

// printSummary mirrors the resolved endpoints back to the operator.
func (b *Bootstrapper) printSummary(routerName string, snapshot *metadata.TopologySnapshot, opts options.Options) {
	label := ""
	if routerName != "" && routerName != SystemRouterName {
		label = " '" + routerName + "'"
	}
	mode := ""
	if opts.MultiMaster {
		mode = " (multi-master)"
	}
	fmt.Fprintf(b.out, "\nCharon router%s has now been configured for cluster '%s'%s.\n\n", label, snapshot.ClusterName, mode)
	fmt.Fprintf(b.out, "The following connection information can be used to connect to the cluster.\n\n")

	printProto := func(title string, rw, ro options.Endpoint) {
		if !rw.Present() && !ro.Present() {
			return
		}
		fmt.Fprintf(b.out, "%s connections to cluster '%s':\n", title, snapshot.ClusterName)
		if rw.Port > 0 {
			fmt.Fprintf(b.out, "- Read/Write Connections: localhost:%d\n", rw.Port)
		}
		if rw.Socket != "" {
			fmt.Fprintf(b.out, "- Read/Write Connections: %s/%s\n", opts.SocketsDir, rw.Socket)
		}
		if ro.Port > 0 {
			fmt.Fprintf(b.out, "- Read/Only Connections: localhost:%d\n", ro.Port)
		}
		if ro.Socket != "" {
			fmt.Fprintf(b.out, "- Read/Only Connections: %s/%s\n", opts.SocketsDir, ro.Socket)
		}
		fmt.Fprintln(b.out)
	}
	printProto("Classic MySQL protocol", opts.RWEndpoint, opts.ROEndpoint)
	printProto("X protocol", opts.RWXEndpoint, opts.ROXEndpoint)
}

func validateRouterName(name string, directory bool) error {
	if directory && name == SystemRouterName {
		return charon_err.NewConflictError(
			"router name '"+SystemRouterName+"' is reserved",
			"choose a different --name for directory deployments")
	}
	if strings.ContainsAny(name, "\n\r") {
		return charon_err.NewValidationError("router name '"+name+"' contains invalid characters", nil)
	}
	if len(name) > maxRouterNameLength {
		return charon_err.NewValidationError(
			fmt.Sprintf("router name '%s' too long (max %d)", name, maxRouterNameLength), nil)
	}
	return nil
}

func copyOptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func directoryEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, charon_err.NewIOError("could not read directory "+dir, err)
	}
	return len(entries) == 0, nil
}

// ensureDirectory creates dir owner-only, reporting whether this call
// created it. Pre-existing directories are left alone so rollback never
// deletes state it did not create.
func ensureDirectory(dir string) (created bool, err error) {
	if err := os.Mkdir(dir, 0o700); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, charon_err.NewIOError("could not create deployment directory "+dir, err)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return charon_err.NewIOError("could not read "+src, err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return charon_err.NewIOError("could not write "+dst, err)
	}
	return nil
}
