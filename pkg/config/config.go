/*
Package config collects the relay's settings from command-line flags, environment variables and
the OS keyring into a single [Config] value.

Command-line flags take precedence over environment variables. Secrets (the MyMazda email and
password and the relay's API key) are only read from the environment, or in the case of the
password, from the OS keyring:

	cfg := config.NewConfig()
	cfg.RegisterCommandLineFlags(pflag.CommandLine)
	pflag.Parse()
	if err := cfg.ReadFromEnvironment(); err != nil {
		panic(err)
	}
	if err := cfg.LoadCredentials(); err != nil { // Reads the password from the keyring if needed
		panic(err)
	}

Once loaded, a Config is treated as immutable and passed by value.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"github.com/spf13/pflag"

	"github.com/vehicle-relay/mazda-relay/internal/log"
	"github.com/vehicle-relay/mazda-relay/pkg/upstream"
)

// Environment variable names read by [Config.ReadFromEnvironment].
const (
	EnvEmail        = "MAZDA_EMAIL"
	EnvPassword     = "MAZDA_PASSWORD"
	EnvRegion       = "MAZDA_REGION"
	EnvAPIKey       = "API_KEY"
	EnvPort         = "PORT"
	EnvHost         = "MAZDA_RELAY_HOST"
	EnvTLSCert      = "MAZDA_RELAY_TLS_CERT"
	EnvTLSKey       = "MAZDA_RELAY_TLS_KEY"
	EnvDriver       = "MAZDA_DRIVER"
	EnvUpstreamURL  = "MAZDA_UPSTREAM_URL"
	EnvTimeout      = "MAZDA_RELAY_TIMEOUT"
	EnvVerbose      = "MAZDA_VERBOSE"
	EnvStrictAuth   = "MAZDA_STRICT_AUTH"
	EnvKeyringName  = "MAZDA_KEYRING_NAME"
	EnvKeyringType  = "MAZDA_KEYRING_TYPE"
	EnvKeyringPath  = "MAZDA_KEYRING_PATH"
	EnvKeyringPass  = "MAZDA_KEYRING_PASSWORD"
	EnvKeyringDebug = "MAZDA_KEYRING_DEBUG"
)

const (
	DefaultPort   = 3000
	DefaultHost   = ""
	DefaultDriver = "rest"
	DefaultRegion = upstream.DefaultRegion

	defaultUpstreamURL = "http://localhost:8080"
)

var (
	ErrInvalidPort     = errors.New("invalid port")
	ErrInvalidTimeout  = errors.New("invalid timeout")
	ErrKeyringNotNamed = errors.New("keyring entry name not provided")
	ErrIncompleteTLS   = errors.New("TLS requires both a certificate and a private key")
	ErrKeyNotFound     = keyring.ErrKeyNotFound
)

// Config holds every setting the relay needs.
type Config struct {
	Email    string
	Password string
	Region   string
	APIKey   string

	Host    string
	Port    int
	Timeout time.Duration // Bounds upstream calls; zero means no limit.
	Verbose bool

	// TLS is enabled when both are set.
	CertFilename string
	KeyFilename  string

	Driver      string
	UpstreamURL string

	// StrictAuth rejects requests when the upstream client exposes no authentication member,
	// instead of assuming it authenticated on construction.
	StrictAuth bool

	KeyringName string // Keyring entry holding the MyMazda password.
	Backend     keyring.Config
	BackendType backendType
	Debug       bool // Enable keyring debug messages

	flags    *pflag.FlagSet
	password *string
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	c := Config{
		Region:      DefaultRegion,
		Host:        DefaultHost,
		Port:        DefaultPort,
		Driver:      DefaultDriver,
		UpstreamURL: defaultUpstreamURL,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword
	return &c
}

// RegisterCommandLineFlags adds the relay's options to fs.
func (c *Config) RegisterCommandLineFlags(fs *pflag.FlagSet) {
	c.flags = fs
	fs.StringVar(&c.Host, "host", c.Host, "Interface to listen on (empty for all). Defaults to $"+EnvHost+".")
	fs.IntVar(&c.Port, "port", c.Port, "`Port` to listen on. Defaults to $"+EnvPort+".")
	fs.StringVar(&c.Region, "region", c.Region, "MyMazda region code. Defaults to $"+EnvRegion+".")
	fs.StringVar(&c.Driver, "driver", c.Driver, "Upstream driver `name`. Defaults to $"+EnvDriver+".")
	fs.StringVar(&c.UpstreamURL, "upstream-url", c.UpstreamURL, "Base `URL` of the gateway used by the rest driver. Defaults to $"+EnvUpstreamURL+".")
	fs.StringVar(&c.CertFilename, "cert", "", "TLS certificate chain `file`. Defaults to $"+EnvTLSCert+".")
	fs.StringVar(&c.KeyFilename, "tls-key", "", "Server TLS private key `file`. Defaults to $"+EnvTLSKey+".")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Timeout for upstream calls (0 disables). Defaults to $"+EnvTimeout+".")
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "Enable verbose logging. Defaults to $"+EnvVerbose+".")
	fs.BoolVar(&c.StrictAuth, "strict-auth", c.StrictAuth, "Fail requests when the upstream client has no authentication method. Defaults to $"+EnvStrictAuth+".")
	fs.StringVar(&c.KeyringName, "keyring-name", "", "System keyring `name` of the MyMazda password. Defaults to $"+EnvKeyringName+".")

	var names []string
	for _, name := range keyring.AvailableBackends() {
		names = append(names, string(name))
	}
	fs.Var(&c.BackendType, "keyring-type", fmt.Sprintf("Keyring `type` (%s). Defaults to $%s.", strings.Join(names, "|"), EnvKeyringType))
	fs.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed credential storage.")
	fs.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
}

func (c *Config) flagSet(name string) bool {
	return c.flags != nil && c.flags.Lookup(name) != nil && c.flags.Changed(name)
}

func parseBool(value string) bool {
	return value != "" && value != "false" && value != "0"
}

// ReadFromEnvironment fills in settings from environment variables. Values set on the command
// line are not overwritten.
func (c *Config) ReadFromEnvironment() error {
	c.Email = os.Getenv(EnvEmail)
	c.APIKey = os.Getenv(EnvAPIKey)
	if password, ok := os.LookupEnv(EnvPassword); ok {
		c.Password = password
	}

	stringFlags := map[string]*string{
		"host":         &c.Host,
		"region":       &c.Region,
		"driver":       &c.Driver,
		"upstream-url": &c.UpstreamURL,
		"keyring-name": &c.KeyringName,
		"cert":         &c.CertFilename,
		"tls-key":      &c.KeyFilename,
	}
	envNames := map[string]string{
		"host":         EnvHost,
		"region":       EnvRegion,
		"driver":       EnvDriver,
		"upstream-url": EnvUpstreamURL,
		"keyring-name": EnvKeyringName,
		"cert":         EnvTLSCert,
		"tls-key":      EnvTLSKey,
	}
	for flagName, field := range stringFlags {
		if c.flagSet(flagName) {
			continue
		}
		if value, ok := os.LookupEnv(envNames[flagName]); ok && value != "" {
			*field = value
			log.Debug("Set %s to '%s'", flagName, value)
		}
	}

	if !c.flagSet("verbose") {
		if verbose, ok := os.LookupEnv(EnvVerbose); ok {
			c.Verbose = parseBool(verbose)
		}
	}
	if !c.flagSet("strict-auth") {
		if strict, ok := os.LookupEnv(EnvStrictAuth); ok {
			c.StrictAuth = parseBool(strict)
		}
	}

	if !c.flagSet("port") {
		if port, ok := os.LookupEnv(EnvPort); ok && port != "" {
			value, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidPort, port)
			}
			c.Port = value
		}
	}

	if !c.flagSet("timeout") {
		if timeoutEnv, ok := os.LookupEnv(EnvTimeout); ok && timeoutEnv != "" {
			timeout, err := time.ParseDuration(timeoutEnv)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidTimeout, timeoutEnv)
			}
			c.Timeout = timeout
		}
	}

	if !c.flagSet("keyring-type") {
		if err := c.BackendType.Set(os.Getenv(EnvKeyringType)); err != nil {
			return err
		}
	}
	if !c.flagSet("keyring-file-dir") {
		if path, ok := os.LookupEnv(EnvKeyringPath); ok && path != "" {
			c.Backend.FileDir = path
		}
	}
	if !c.flagSet("keyring-debug") {
		c.Debug = parseBool(os.Getenv(EnvKeyringDebug))
	}
	if password, ok := os.LookupEnv(EnvKeyringPass); ok && c.password == nil {
		c.password = &password
		if len(password) > 0 {
			log.Debug("Set keyring File Password to %s", strings.Repeat("*", len("hunter2")))
		}
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	return nil
}

// Validate checks settings that do not depend on the upstream service.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, c.Port))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Timeout))
	}
	if (c.CertFilename == "") != (c.KeyFilename == "") {
		errs = append(errs, ErrIncompleteTLS)
	}
	if _, err := upstream.Lookup(c.Driver); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Credentials returns the MyMazda credentials.
func (c *Config) Credentials() upstream.Credentials {
	return upstream.Credentials{Email: c.Email, Password: c.Password, Region: c.Region}
}

// TLS returns true if the relay should serve HTTPS.
func (c *Config) TLS() bool {
	return c.CertFilename != "" && c.KeyFilename != ""
}

// Addr returns the address the relay listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
