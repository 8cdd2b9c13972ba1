package hibiki

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strconv"
	"strings"

	"git.sr.ht/~emersion/go-scfg"
)

// NetworkConfig describes one IRC network the manager can connect to.
type NetworkConfig struct {
	Name string

	Addr     string
	Nick     string
	User     string
	Real     string
	Password *string // server PASS

	TLS           bool
	TLSSkipVerify bool
	ClientCert    string // path to a PEM certificate for SASL EXTERNAL
	ClientKey     string

	SASLUser     string
	SASLPassword string
	SASLExternal bool

	Channels []string
	Ignore   []string // nick!user@host masks, * wildcards
}

type Config struct {
	Networks []NetworkConfig

	STSStorePath string
	Debug        bool
}

func Defaults() Config {
	return Config{}
}

// LoadConfigFile parses an scfg configuration file with one network block
// per network.
func LoadConfigFile(filename string) (cfg Config, err error) {
	cfg = Defaults()

	directives, err := scfg.Load(filename)
	if err != nil {
		return cfg, fmt.Errorf("error parsing scfg: %s", err)
	}

	for _, d := range directives {
		switch d.Name {
		case "network":
			var network NetworkConfig
			if err := d.ParseParams(&network.Name); err != nil {
				return cfg, err
			}
			if err := unmarshalNetwork(d, &network); err != nil {
				return cfg, fmt.Errorf("network %q: %v", network.Name, err)
			}
			cfg.Networks = append(cfg.Networks, network)
		case "sts-store":
			if err := d.ParseParams(&cfg.STSStorePath); err != nil {
				return cfg, err
			}
		case "debug":
			var debug string
			if err := d.ParseParams(&debug); err != nil {
				return cfg, err
			}
			if cfg.Debug, err = strconv.ParseBool(debug); err != nil {
				return cfg, err
			}
		default:
			return cfg, fmt.Errorf("unknown directive %q", d.Name)
		}
	}

	names := map[string]struct{}{}
	for _, network := range cfg.Networks {
		if _, ok := names[network.Name]; ok {
			return cfg, fmt.Errorf("duplicate network %q", network.Name)
		}
		names[network.Name] = struct{}{}
	}

	return cfg, nil
}

func unmarshalNetwork(d *scfg.Directive, network *NetworkConfig) (err error) {
	network.TLS = true

	for _, child := range d.Children {
		switch child.Name {
		case "address":
			if err := child.ParseParams(&network.Addr); err != nil {
				return err
			}
		case "nickname":
			if err := child.ParseParams(&network.Nick); err != nil {
				return err
			}
		case "username":
			if err := child.ParseParams(&network.User); err != nil {
				return err
			}
		case "realname":
			if err := child.ParseParams(&network.Real); err != nil {
				return err
			}
		case "password":
			// if a password-cmd is provided, don't use this value
			if d.Children.Get("password-cmd") != nil {
				continue
			}

			var password string
			if err := child.ParseParams(&password); err != nil {
				return err
			}
			network.Password = &password
		case "password-cmd":
			var cmdName string
			if err := child.ParseParams(&cmdName); err != nil {
				return err
			}

			cmd := exec.Command(cmdName, child.Params[1:]...)
			var stdout []byte
			if stdout, err = cmd.Output(); err != nil {
				return fmt.Errorf("error running password command: %s", err)
			}

			passCmdOut := strings.Split(string(stdout), "\n")
			if len(passCmdOut) >= 1 {
				network.Password = &passCmdOut[0]
			}
		case "sasl":
			var mech string
			if err := child.ParseParams(&mech); err != nil {
				return err
			}
			switch strings.ToLower(mech) {
			case "plain":
				if err := child.ParseParams(nil, &network.SASLUser, &network.SASLPassword); err != nil {
					return err
				}
			case "external":
				network.SASLExternal = true
			default:
				return fmt.Errorf("unknown sasl mechanism %q", mech)
			}
		case "tls":
			var tls string
			if err := child.ParseParams(&tls); err != nil {
				return err
			}
			if network.TLS, err = strconv.ParseBool(tls); err != nil {
				return err
			}
		case "tls-skip-verify":
			var skip string
			if err := child.ParseParams(&skip); err != nil {
				return err
			}
			if network.TLSSkipVerify, err = strconv.ParseBool(skip); err != nil {
				return err
			}
		case "client-cert":
			if err := child.ParseParams(&network.ClientCert, &network.ClientKey); err != nil {
				return err
			}
		case "channel":
			network.Channels = append(network.Channels, child.Params...)
		case "ignore":
			network.Ignore = append(network.Ignore, child.Params...)
		default:
			return fmt.Errorf("unknown directive %q", child.Name)
		}
	}

	if network.Addr == "" {
		return errors.New("address is required")
	}
	if network.Nick == "" {
		return errors.New("nickname is required")
	}
	if network.User == "" {
		network.User = network.Nick
	}
	if network.Real == "" {
		network.Real = network.Nick
	}
	if network.Name == "" {
		network.Name = network.Addr
	}

	var u *url.URL
	if u, err = url.Parse(network.Addr); err == nil && u.Scheme != "" {
		switch u.Scheme {
		case "ircs":
			network.TLS = true
		case "irc+insecure":
			network.TLS = false
		case "irc":
			// could be TLS or plaintext, keep TLS as is
		default:
			if u.Host != "" {
				return fmt.Errorf("invalid IRC addr scheme: %v", network.Addr)
			}
		}
		if u.Host != "" {
			network.Addr = u.Host
		}
	}
	return nil
}

// Host is the bare hostname of the network, without the port.
func (network *NetworkConfig) Host() string {
	addr := network.Addr
	colonIdx := strings.LastIndexByte(addr, ':')
	bracketIdx := strings.LastIndexByte(addr, ']')
	if colonIdx > bracketIdx {
		addr = addr[:colonIdx]
	}
	return strings.Trim(addr, "[]")
}
