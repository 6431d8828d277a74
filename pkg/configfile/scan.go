// pkg/configfile/scan.go

package configfile

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type section struct {
	name string
	keys map[string]string
}

// RouterIDForCluster scans an existing configuration for the router id a
// previous bootstrap recorded for clusterName, via the metadata_cluster
// option of the metadata_cache section.
//
// Zero with a nil error means "no usable identity, register a fresh one".
// A configuration already bound to a different cluster is a conflict unless
// the caller forces an overwrite.
func RouterIDForCluster(rc *charon_io.RuntimeContext, path, clusterName string, forcingOverwrite bool) (uint32, error) {
	sections, err := readSections(path)
	if err != nil {
		return 0, err
	}

	var metadataSections []section
	for _, s := range sections {
		if s.name == "metadata_cache" || strings.HasPrefix(s.name, "metadata_cache:") {
			metadataSections = append(metadataSections, s)
		}
	}
	if len(metadataSections) > 1 {
		return 0, cerr.New("bootstrapping a router with multiple metadata_cache sections is not supported")
	}

	existingCluster := ""
	for _, s := range metadataSections {
		cluster, ok := s.keys["metadata_cluster"]
		if !ok {
			continue
		}
		existingCluster = cluster
		if cluster != clusterName {
			continue
		}
		raw, ok := s.keys["router_id"]
		if !ok {
			otelzap.Ctx(rc.Ctx).Warn("router_id not set for cluster",
				zap.String("cluster", clusterName), zap.String("path", path))
			return 0, nil
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return 0, cerr.Newf("invalid router_id '%s' for cluster '%s' in %s", raw, clusterName, path)
		}
		return uint32(id), nil
	}

	if existingCluster != "" && !forcingOverwrite {
		return 0, charon_err.NewConflictError(
			"this router instance is already configured for a cluster named '"+existingCluster+"'",
			"pass --force to replace the existing configuration")
	}
	return 0, nil
}

// readSections parses the line-oriented [section] / key=value format the
// generator itself emits. Section names may carry a key suffix after a colon;
// comments start with '#' or ';'.
func readSections(path string) ([]section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, charon_err.NewIOError("could not read configuration "+path, err)
	}
	defer f.Close()

	var sections []section
	var current *section
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			sections = append(sections, section{
				name: strings.TrimSpace(line[1 : len(line)-1]),
				keys: make(map[string]string),
			})
			current = &sections[len(sections)-1]
			continue
		}
		if current == nil {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			current.keys[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, charon_err.NewIOError("could not read configuration "+path, err)
	}
	return sections, nil
}
