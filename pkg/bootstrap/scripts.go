package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/configfile"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"mvdan.cc/sh/v3/syntax"
)

// WriteStartScript emits start.sh into the deployment directory. When the
// master key lives only in the operator's head (no key file), the script
// collects it on stdin with echo disabled and feeds it to the router.
func WriteStartScript(rc *charon_io.RuntimeContext, directory string, interactiveMasterKey bool, execPath string) error {
	quotedDir, err := quoteForShell(directory)
	if err != nil {
		return err
	}
	quotedExec, err := quoteForShell(execPath)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&sb, "basedir=%s\n", quotedDir)
	launch := fmt.Sprintf("ROUTER_PID=$basedir/%s %s -c $basedir/%s", PidFileName, quotedExec, configfile.DefaultFileName)
	if interactiveMasterKey {
		sb.WriteString("old_stty=`stty -g`\n")
		sb.WriteString("stty -echo\n")
		sb.WriteString("echo -n 'Encryption key for router keyring:'\n")
		sb.WriteString("read password\n")
		sb.WriteString("stty $old_stty\n")
		sb.WriteString("echo $password | " + launch + " &\n")
	} else {
		sb.WriteString(launch + " &\n")
	}
	sb.WriteString("disown %-\n")

	return writeScript(rc, filepath.Join(directory, "start.sh"), sb.String())
}

// WriteStopScript emits stop.sh, which signals the running router through
// the pid file start.sh recorded.
func WriteStopScript(rc *charon_io.RuntimeContext, directory string) error {
	pidPath, err := quoteForShell(filepath.Join(directory, PidFileName))
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&sb, "if [ -f %s ]; then\n", pidPath)
	fmt.Fprintf(&sb, "  kill -HUP `cat %s`\n", pidPath)
	fmt.Fprintf(&sb, "  rm -f %s\n", pidPath)
	sb.WriteString("fi\n")

	return writeScript(rc, filepath.Join(directory, "stop.sh"), sb.String())
}

func writeScript(rc *charon_io.RuntimeContext, path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o700); err != nil {
		return charon_err.NewIOError("could not write "+path, err)
	}
	otelzap.Ctx(rc.Ctx).Debug("Wrote deployment script", zap.String("path", path))
	return nil
}

func quoteForShell(s string) (string, error) {
	quoted, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "", charon_err.NewValidationError("path "+s+" cannot be used in a shell script", err)
	}
	return quoted, nil
}
