// Package options resolves the generic bootstrap key/value option map into
// the concrete set of network endpoints the generated configuration exposes.
package options

import (
	"strconv"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultRWPort = 6446
	DefaultROPort = 6447

	DefaultRWXPort = 64460
	DefaultROXPort = 64470

	RWSocketName  = "mysql.sock"
	ROSocketName  = "mysqlro.sock"
	RWXSocketName = "mysqlx.sock"
	ROXSocketName = "mysqlxro.sock"
)

// Endpoint is a single listening endpoint. It is present iff a port or a
// socket is set; both may be set simultaneously.
type Endpoint struct {
	Port   int
	Socket string
}

func (e Endpoint) Present() bool {
	return e.Port > 0 || e.Socket != ""
}

// Options is the resolved deployment shape fed into config rendering and the
// metadata write-back.
type Options struct {
	MultiMaster bool
	BindAddress string

	// rw/ro × classic/X endpoints. Read-only endpoints are never populated
	// for multi-primary topologies: there is no secondary role to route to.
	RWEndpoint  Endpoint
	ROEndpoint  Endpoint
	RWXEndpoint Endpoint
	ROXEndpoint Endpoint

	OverrideLogdir string
	OverrideRundir string
	SocketsDir     string

	KeyringPath   string
	MasterKeyPath string
}

var validate = validator.New()

// Resolve validates and expands the user option map. Port allocation is
// sequential from base-port when supplied, in the fixed order classic RW,
// classic RO, X RW, X RO; each endpoint that needs a port consumes the next
// integer.
func Resolve(userOptions map[string]string, multiMaster bool) (Options, error) {
	opts := Options{MultiMaster: multiMaster, BindAddress: "0.0.0.0"}

	basePort := 0
	if raw, ok := userOptions["base-port"]; ok {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return Options{}, charon_err.NewValidationError("invalid base-port value "+raw, err)
		}
		basePort = p
	}
	_, useSockets := userOptions["use-sockets"]
	_, skipTCP := userOptions["skip-tcp"]
	_, skipClassic := userOptions["skip-classic"]
	_, skipX := userOptions["skip-x"]

	if addr, ok := userOptions["bind-address"]; ok {
		if err := validate.Var(addr, "ip|hostname_rfc1123"); err != nil {
			return Options{}, charon_err.NewValidationError("invalid bind-address value "+addr, err)
		}
		opts.BindAddress = addr
	}

	nextPort := func(fallback int) int {
		if basePort == 0 {
			return fallback
		}
		p := basePort
		basePort++
		return p
	}

	if !skipClassic {
		if useSockets {
			opts.RWEndpoint.Socket = RWSocketName
			if !multiMaster {
				opts.ROEndpoint.Socket = ROSocketName
			}
		}
		if !skipTCP {
			opts.RWEndpoint.Port = nextPort(DefaultRWPort)
			if !multiMaster {
				opts.ROEndpoint.Port = nextPort(DefaultROPort)
			}
		}
	}
	if !skipX {
		if useSockets {
			opts.RWXEndpoint.Socket = RWXSocketName
			if !multiMaster {
				opts.ROXEndpoint.Socket = ROXSocketName
			}
		}
		if !skipTCP {
			opts.RWXEndpoint.Port = nextPort(DefaultRWXPort)
			if !multiMaster {
				opts.ROXEndpoint.Port = nextPort(DefaultROXPort)
			}
		}
	}

	opts.OverrideLogdir = userOptions["logdir"]
	opts.OverrideRundir = userOptions["rundir"]
	opts.SocketsDir = userOptions["socketsdir"]
	return opts, nil
}
