package pglink

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HostType selects how Config.Host is interpreted, per §6.
type HostType string

const (
	HostTCP    HostType = "tcp"
	HostSocket HostType = "socket"
)

// TLSConfig controls whether and how the connection is upgraded, per §6.
type TLSConfig struct {
	Enabled bool `yaml:"enabled"`
	Enforce bool `yaml:"enforce"`
	// CACertificates holds inline PEM-encoded CA certificates, per §6.
	CACertificates []string `yaml:"ca_certificates"`
	// CACertificatesPath is an additive knob beyond §6: a path to a PEM
	// bundle (§6 only specifies inline strings). dialConn does not read it;
	// the bundle is hot-reloaded only through a CAWatcher built for it.
	CACertificatesPath string `yaml:"ca_certificates_path"`
	// CAWatcher, if set, supplies the live CA pool for CACertificatesPath;
	// callers construct it once via NewCAWatcher and share it across every
	// Config built from the same defaults. Not a YAML field — it is
	// runtime-only state.
	CAWatcher *CAWatcher `yaml:"-"`
}

// ConnectionConfig controls reconnection attempts, per §6.
type ConnectionConfig struct {
	Attempts int                        `yaml:"attempts"`
	Interval func(attempt int) time.Duration `yaml:"-"`
}

// DecodeStrategy mirrors codec.DecodeStrategy at the config boundary so
// config.go does not need to import internal/codec for a single enum.
type DecodeStrategy string

const (
	DecodeAuto   DecodeStrategy = "auto"
	DecodeString DecodeStrategy = "string"
)

// DebugFlag names one of the controls.debug flags, per §6.
type DebugFlag string

const (
	DebugQueries      DebugFlag = "queries"
	DebugNotices      DebugFlag = "notices"
	DebugResults      DebugFlag = "results"
	DebugQueryInError DebugFlag = "query_in_error"
)

// Controls groups the controls.* options from §6.
type Controls struct {
	DecodeStrategy DecodeStrategy
	Debug          map[DebugFlag]bool
}

// Config is the full set of client configuration options from §6.
type Config struct {
	User            string
	Password        string
	Database        string
	Host            string
	HostType        HostType
	Port            int
	ApplicationName string
	Options         map[string]string

	Connection ConnectionConfig
	TLS        TLSConfig
	Controls   Controls
}

// yamlConfig is the subset of Config that can come from an on-disk YAML
// defaults file; unlike Config it has no func fields, matching the
// teacher's plain-data yaml.Unmarshal target in internal/config.Config.
type yamlConfig struct {
	User            string            `yaml:"user"`
	Password        string            `yaml:"password"`
	Database        string            `yaml:"database"`
	Host            string            `yaml:"host"`
	HostType        string            `yaml:"host_type"`
	Port            int               `yaml:"port"`
	ApplicationName string            `yaml:"application_name"`
	Options         map[string]string `yaml:"options"`
	Connection      struct {
		Attempts int `yaml:"attempts"`
	} `yaml:"connection"`
	TLS struct {
		Enabled            bool     `yaml:"enabled"`
		Enforce            bool     `yaml:"enforce"`
		CACertificates     []string `yaml:"ca_certificates"`
		CACertificatesPath string   `yaml:"ca_certificates_path"`
	} `yaml:"tls"`
}

const (
	defaultTCPHost   = "127.0.0.1"
	defaultSocketDir = "/tmp"
)

// DefaultConfig returns the compiled-in defaults from §6, before any
// YAML/env/URL override is applied.
func DefaultConfig() Config {
	return Config{
		HostType:        HostTCP,
		Host:            defaultTCPHost,
		Port:            5432,
		ApplicationName: "pglink",
		Options:         map[string]string{},
		Connection: ConnectionConfig{
			Attempts: 1,
			Interval: func(attempt int) time.Duration {
				return time.Duration(attempt+1) * 500 * time.Millisecond
			},
		},
		TLS: TLSConfig{Enabled: true, Enforce: false},
		Controls: Controls{
			DecodeStrategy: DecodeAuto,
			Debug:          map[DebugFlag]bool{},
		},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} with the environment variable's
// value, mirroring the teacher's internal/config.substituteEnvVars.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(name)); ok {
			return []byte(val)
		}
		return match
	})
}

// LoadDefaults reads a YAML defaults file (with ${VAR} substitution) and
// layers it onto DefaultConfig. Environment variables and URLs are separate
// steps (ApplyEnv, ParseURL); ApplyEnv only fills fields that are still
// empty, so it does not override values from DefaultConfig or the file.
func LoadDefaults(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("pglink: reading config file: %w", err)
	}
	data = substituteEnvVars(data)

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return cfg, fmt.Errorf("pglink: parsing config file: %w", err)
	}
	applyYAML(&cfg, &y)
	return cfg, nil
}

func applyYAML(cfg *Config, y *yamlConfig) {
	if y.User != "" {
		cfg.User = y.User
	}
	if y.Password != "" {
		cfg.Password = y.Password
	}
	if y.Database != "" {
		cfg.Database = y.Database
	}
	if y.Host != "" {
		cfg.Host = y.Host
	}
	if y.HostType != "" {
		cfg.HostType = HostType(y.HostType)
	}
	if y.Host == "" && cfg.HostType == HostSocket && cfg.Host == defaultTCPHost {
		cfg.Host = defaultSocketDir
	}
	if y.Port != 0 {
		cfg.Port = y.Port
	}
	if y.ApplicationName != "" {
		cfg.ApplicationName = y.ApplicationName
	}
	for k, v := range y.Options {
		cfg.Options[k] = v
	}
	if y.Connection.Attempts != 0 {
		cfg.Connection.Attempts = y.Connection.Attempts
	}
	cfg.TLS.Enabled = y.TLS.Enabled
	cfg.TLS.Enforce = y.TLS.Enforce
	if len(y.TLS.CACertificates) > 0 {
		cfg.TLS.CACertificates = y.TLS.CACertificates
	}
	if y.TLS.CACertificatesPath != "" {
		cfg.TLS.CACertificatesPath = y.TLS.CACertificatesPath
	}
}

// ApplyEnv fills unset options from PGAPPNAME/PGDATABASE/PGHOST/PGOPTIONS/
// PGPASSWORD/PGPORT/PGUSER, per §6.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("PGAPPNAME"); ok && cfg.ApplicationName == "" {
		cfg.ApplicationName = v
	}
	if v, ok := os.LookupEnv("PGDATABASE"); ok && cfg.Database == "" {
		cfg.Database = v
	}
	if v, ok := os.LookupEnv("PGHOST"); ok && cfg.Host == "" {
		cfg.Host = v
	}
	if v, ok := os.LookupEnv("PGOPTIONS"); ok && len(cfg.Options) == 0 {
		cfg.Options = parseOptionsString(v)
	}
	if v, ok := os.LookupEnv("PGPASSWORD"); ok && cfg.Password == "" {
		cfg.Password = v
	}
	if v, ok := os.LookupEnv("PGPORT"); ok && cfg.Port == 0 {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v, ok := os.LookupEnv("PGUSER"); ok && cfg.User == "" {
		cfg.User = v
	}
}

// parseOptionsString parses the "options" grammar: space-separated
// "--k=v" or "-c k=v" tokens, with spaces inside a value escaped by "\ ".
func parseOptionsString(s string) map[string]string {
	out := make(map[string]string)
	tokens := splitUnescapedSpaces(s)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case strings.HasPrefix(tok, "--"):
			kv := strings.SplitN(tok[2:], "=", 2)
			if len(kv) == 2 {
				out[kv[0]] = strings.ReplaceAll(kv[1], `\ `, " ")
			}
		case tok == "-c" && i+1 < len(tokens):
			kv := strings.SplitN(tokens[i+1], "=", 2)
			if len(kv) == 2 {
				out[kv[0]] = strings.ReplaceAll(kv[1], `\ `, " ")
			}
			i++
		}
	}
	return out
}

func splitUnescapedSpaces(s string) []string {
	var out []string
	var cur strings.Builder
	escaped := false
	for _, c := range s {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\':
			cur.WriteByte('\\')
			escaped = true
		case c == ' ':
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(c)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// ParseURL parses a postgres[ql]://[user[:password]@][host[:port]]/[database][?k=v&...]
// connection URI per §6, returning a Config seeded from DefaultConfig.
func ParseURL(dsn string) (Config, error) {
	cfg := DefaultConfig()

	u, err := url.Parse(dsn)
	if err != nil {
		return cfg, newConfigError("url", "cannot parse connection URI: %v", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return cfg, newConfigError("url", "unsupported scheme %q", u.Scheme)
	}

	if u.User != nil {
		cfg.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}
	if host := u.Hostname(); host != "" {
		cfg.Host = host
	}
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return cfg, newConfigError("port", "invalid port %q", port)
		}
		cfg.Port = p
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		cfg.Database = db
	}

	q := u.Query()
	if v := q.Get("application_name"); v != "" {
		cfg.ApplicationName = v
	}
	if v := q.Get("dbname"); v != "" {
		cfg.Database = v
	}
	if v := q.Get("host"); v != "" {
		cfg.Host = v
	}
	if v := q.Get("options"); v != "" {
		cfg.Options = parseOptionsString(v)
	}
	if v := q.Get("password"); v != "" {
		cfg.Password = v
	}
	if v := q.Get("port"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, newConfigError("port", "invalid port %q", v)
		}
		cfg.Port = p
	}
	if v := q.Get("user"); v != "" {
		cfg.User = v
	}
	if v := q.Get("sslmode"); v != "" {
		switch v {
		case "disable":
			cfg.TLS.Enabled = false
			cfg.TLS.Enforce = false
		case "prefer":
			cfg.TLS.Enabled = true
			cfg.TLS.Enforce = false
		case "require", "verify-ca", "verify-full":
			cfg.TLS.Enabled = true
			cfg.TLS.Enforce = true
		default:
			return cfg, newConfigError("sslmode", "unsupported sslmode %q", v)
		}
	}

	return cfg, nil
}

// Validate checks the invariants named in §7's ConfigError cases.
func (c Config) Validate() error {
	if c.User == "" {
		return newConfigError("user", "required")
	}
	if c.Database == "" {
		return newConfigError("database", "required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return newConfigError("port", "invalid port %d", c.Port)
	}
	if c.HostType != HostTCP && c.HostType != HostSocket {
		return newConfigError("host_type", "must be tcp or socket, got %q", c.HostType)
	}
	if c.HostType == HostSocket && c.TLS.Enabled {
		return newConfigError("tls", "tls cannot be enabled over a unix socket")
	}
	if c.TLS.Enforce && !c.TLS.Enabled {
		return newConfigError("tls", "tls.enforce requires tls.enabled")
	}
	return nil
}
