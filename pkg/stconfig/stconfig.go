// Package stconfig loads the transport core's tunables from the
// process environment, in the style of pkg/atlas's Config: struct
// tags name the env var and its default, and UnmarshalEnv reflects
// over the struct to apply them.
package stconfig

import (
	"fmt"
	"net/netip"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-envparse"
	"github.com/rs/zerolog"
)

// Load reads config from an env file at path if non-empty, or from
// the process environment otherwise, and unmarshals it into a new
// Config, the same two-mode convention cmd/startrek-demo's CLI uses.
func Load(path string) (*Config, error) {
	var c Config
	if path == "" {
		if err := c.UnmarshalEnv(os.Environ()); err != nil {
			return nil, err
		}
		return &c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stconfig: open env file: %w", err)
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("stconfig: parse env file: %w", err)
	}
	es := make([]string, 0, len(m))
	for k, v := range m {
		es = append(es, k+"="+v)
	}
	if err := c.UnmarshalEnv(es); err != nil {
		return nil, err
	}
	return &c, nil
}

// Config holds every tunable named in spec.md §6's Configuration
// table, plus the ambient knobs SPEC_FULL.md §2 adds for logging,
// listening addresses, and the driver tick rate.
type Config struct {
	// Connection state machine (spec.md §4.3).
	ExpiresMs   time.Duration `env:"ST_EXPIRES_MS=16s"`
	RecvFreshMs time.Duration `env:"ST_RECV_FRESH_MS=32s"`

	// Dock/Ship tunables (spec.md §3).
	ReassemblyMs time.Duration `env:"ST_REASSEMBLY_MS=300s"`
	MaxTries     int           `env:"ST_MAX_TRIES=3"`

	// Gate scheduling (spec.md §4.7).
	HeartbeatMs     time.Duration `env:"ST_HEARTBEAT_MS=30s"`
	PurgeMs         time.Duration `env:"ST_PURGE_MS=60s"`
	AdvancePartyCap int           `env:"ST_ADVANCE_PARTY_CAP=8"`

	// Driver loop.
	TickMs time.Duration `env:"ST_TICK_MS=100ms"`

	// Listening addresses.
	AddrUDP netip.AddrPort `env:"ST_ADDR_UDP=:0"`
	AddrTCP netip.AddrPort `env:"ST_ADDR_TCP=:0"`

	// Metrics/debug.
	MetricsAddr string `env:"ST_METRICS_ADDR"`

	// Logging.
	LogLevel        zerolog.Level `env:"ST_LOG_LEVEL=info"`
	LogStdout       bool          `env:"ST_LOG_STDOUT=true"`
	LogStdoutPretty bool          `env:"ST_LOG_STDOUT_PRETTY=true"`
}

// UnmarshalEnv unmarshals an array of "KEY=VALUE" strings into c,
// applying each field's default when the corresponding key is absent.
// Unrecognized ST_-prefixed keys with a non-empty value are rejected;
// unrecognized keys with an empty value are ignored.
func (c *Config) UnmarshalEnv(es []string) error {
	em := map[string]string{}
	for _, e := range es {
		if strings.HasPrefix(e, "ST_") {
			if k, v, ok := strings.Cut(e, "="); ok {
				em[k] = v
			}
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}
		key, def, _ := strings.Cut(env, "=")

		val := def
		if v, exists := em[key]; exists {
			val = v
			delete(em, key)
		}

		cvf := cv.FieldByName(ctf.Name)
		switch cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case int:
			if val == "" {
				cvf.SetInt(0)
				continue
			}
			v, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
			cvf.SetInt(v)
		case bool:
			if val == "" {
				cvf.SetBool(false)
				continue
			}
			v, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
			cvf.SetBool(v)
		case time.Duration:
			if val == "" {
				cvf.Set(reflect.ValueOf(time.Duration(0)))
				continue
			}
			v, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
			cvf.Set(reflect.ValueOf(v))
		case zerolog.Level:
			v, err := zerolog.ParseLevel(val)
			if err != nil {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
			cvf.Set(reflect.ValueOf(v))
		case netip.AddrPort:
			if val == "" {
				cvf.Set(reflect.ValueOf(netip.AddrPort{}))
				continue
			}
			v, err := netip.ParseAddrPort(val)
			if err != nil && len(val) > 0 && val[0] == ':' {
				v, err = netip.ParseAddrPort("[::]" + val)
			}
			if err != nil {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
			cvf.Set(reflect.ValueOf(v))
		default:
			return fmt.Errorf("stconfig: unhandled field type %s for %s", cvf.Type(), ctf.Name)
		}
	}

	for key, val := range em {
		if val != "" {
			return fmt.Errorf("unknown environment variable %q", key)
		}
	}
	return nil
}
