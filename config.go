package littlewebserver

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

// Config is the set of configurations used to customize a Server.
//
// It is recommended not to mutate a Config after passing it to NewServer.
type Config struct {
	// Network is either "tcp" or "unix". Default value is "tcp".
	Network string `mapstructure:"network"`

	// Address is the address the Server listens on.
	//
	// For the "tcp" network it is "host:port" (IPv6 hosts must be
	// bracketed). For the "unix" network it is a filesystem path.
	//
	// Default value is "localhost:8080".
	Address string `mapstructure:"address"`

	// DebugMode enables verbose logging of protocol-level events.
	//
	// Default value is false.
	DebugMode bool `mapstructure:"debug_mode"`

	// LogFormat is the text/template format string used by the Logger.
	//
	// Default value is:
	// `{"time":"{{.time_rfc3339}}","level":"{{.level}}",` +
	// `"file":"{{.short_file}}","line":"{{.line}}"}`
	LogFormat string `mapstructure:"log_format"`

	// ServerHeader, if non-empty, is sent as the Server response header on
	// every response that does not already set one.
	//
	// Default value is "".
	ServerHeader string `mapstructure:"server_header"`

	// InitialRequestTimeout bounds the read of the first request line of
	// a newly accepted connection. See §4.5 ReadingHead.
	//
	// Default value is 30s.
	InitialRequestTimeout time.Duration `mapstructure:"initial_request_timeout"`

	// KeepAliveTimeout is advertised as the timeout parameter of the
	// Keep-Alive response header, and is the TCP keep-alive probe period of
	// accepted TCP connections (3 minutes when zero). The server does not
	// close an idle keep-alive connection after it: reads of later requests
	// on a connection have no deadline.
	//
	// Default value is 0.
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout"`

	// MaxRequestsPerConnection caps how many requests may be served on a
	// single keep-alive connection before it is closed. Zero means no
	// limit.
	//
	// Default value is 0.
	MaxRequestsPerConnection int `mapstructure:"max_requests_per_connection"`

	// TempRoot is the root directory under which multipart/form-data
	// uploads are streamed to temp files, in
	// "<TempRoot>/<host-name-or-default>/<uuid>" layout.
	//
	// Default value is "<os.TempDir()>/LittleWebServer".
	TempRoot string `mapstructure:"temp_root"`

	// GlobalMaxInFlight is the cap on the total number of requests in
	// flight across every WorkerQueue. -1 means unlimited.
	//
	// Default value is -1.
	GlobalMaxInFlight int `mapstructure:"global_max_in_flight"`

	// RequestQueueMaxInFlight is the cap on the number of requests in
	// flight on the ".request" queue. Must be -1 or a positive integer.
	//
	// Default value is -1.
	RequestQueueMaxInFlight int `mapstructure:"request_queue_max_in_flight"`

	// SessionTimeoutSeconds bounds how long an idle session, as tracked by
	// the default InMemorySessionManager, remains valid. Zero disables
	// expiry.
	//
	// Default value is 1800 (30 minutes).
	SessionTimeoutSeconds int `mapstructure:"session_timeout_seconds"`

	// SessionSweepInterval is how often the background session-checker
	// (spec §5's "stopping flag is polled by ... the session-checker")
	// sweeps expired sessions and orphaned upload-cache entries.
	//
	// Default value is 1m.
	SessionSweepInterval time.Duration `mapstructure:"session_sweep_interval"`
}

// defaultConfig holds the zero-value defaults applied by NewConfig.
var defaultConfig = Config{
	Network: "tcp",
	Address: "localhost:8080",
	LogFormat: `{"time":"{{.time_rfc3339}}","level":"{{.level}}",` +
		`"file":"{{.short_file}}","line":"{{.line}}"}`,
	InitialRequestTimeout:   30 * time.Second,
	TempRoot:                filepath.Join(defaultTempDir(), "LittleWebServer"),
	GlobalMaxInFlight:       -1,
	RequestQueueMaxInFlight: -1,
	SessionTimeoutSeconds:   1800,
	SessionSweepInterval:    time.Minute,
}

// defaultTempDir returns the OS temp directory, isolated into its own
// function so tests can override it indirectly via TempRoot.
func defaultTempDir() string {
	return os.TempDir()
}

// NewConfig returns a new Config populated with the package defaults.
func NewConfig() *Config {
	c := defaultConfig
	return &c
}

// LoadConfigFile populates c from the configuration file at path. The file
// format is chosen from the path's extension: ".json", ".toml", or ".yaml"/
// ".yml".
func LoadConfigFile(c *Config, path string) error {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	m := map[string]interface{}{}
	switch e := strings.ToLower(filepath.Ext(path)); e {
	case ".json":
		err = json.Unmarshal(b, &m)
	case ".toml":
		err = toml.Unmarshal(b, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	default:
		err = fmt.Errorf("littlewebserver: unsupported configuration file extension: %s", e)
	}
	if err != nil {
		return err
	}

	return mapstructure.Decode(m, c)
}

// normalize validates and fills in zero-valued fields of c, returning a
// ConfigurationError if a value is invalid.
func (c *Config) normalize() error {
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.Network != "tcp" && c.Network != "unix" {
		return &ConfigurationError{Reason: fmt.Sprintf("unsupported network %q", c.Network)}
	}
	if c.Address == "" {
		c.Address = defaultConfig.Address
	}
	if c.Network == "tcp" {
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			return &ConfigurationError{Reason: fmt.Sprintf("invalid address %q: %v", c.Address, err)}
		}
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultConfig.LogFormat
	}
	if c.InitialRequestTimeout <= 0 {
		c.InitialRequestTimeout = defaultConfig.InitialRequestTimeout
	}
	if c.TempRoot == "" {
		c.TempRoot = defaultConfig.TempRoot
	}
	if c.GlobalMaxInFlight == 0 || c.GlobalMaxInFlight < -1 {
		return &ConfigurationError{Reason: "global_max_in_flight must be -1 or positive"}
	}
	if c.RequestQueueMaxInFlight == 0 || c.RequestQueueMaxInFlight < -1 {
		return &ConfigurationError{Reason: "request_queue_max_in_flight must be -1 or positive"}
	}
	if c.SessionTimeoutSeconds < 0 {
		return &ConfigurationError{Reason: "session_timeout_seconds must be non-negative"}
	}
	if c.SessionSweepInterval <= 0 {
		c.SessionSweepInterval = defaultConfig.SessionSweepInterval
	}
	return nil
}
