package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vehicle-relay/mazda-relay/internal/log"
	"github.com/vehicle-relay/mazda-relay/pkg/config"
	"github.com/vehicle-relay/mazda-relay/pkg/relay"
	"github.com/vehicle-relay/mazda-relay/pkg/upstream"
	"github.com/vehicle-relay/mazda-relay/pkg/upstream/rest"
	_ "github.com/vehicle-relay/mazda-relay/pkg/upstream/sim"
)

const nonLocalhostWarning = `
The relay can start your vehicles. Keep API_KEY secret, and serve over TLS (or behind a TLS
terminating proxy) when listening on a network interface other than localhost.`

func Usage() {
	out := os.Stderr
	fmt.Fprintf(out, "Usage: %s [OPTION...]\n", os.Args[0])
	fmt.Fprintln(out, "\nA server that exposes a small REST API for MyMazda vehicle commands.")
	fmt.Fprintln(out, nonLocalhostWarning)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Environment:")
	fmt.Fprintf(out, "  %s, %s\tMyMazda account credentials\n", config.EnvEmail, config.EnvPassword)
	fmt.Fprintf(out, "  %s\tShared secret required in the x-api-key header\n", config.EnvAPIKey)
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "Drivers: %s\n", strings.Join(upstream.Drivers(), ", "))
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	pflag.PrintDefaults()
}

func main() {
	var storePassword bool
	cfg := config.NewConfig()

	pflag.Usage = Usage
	cfg.RegisterCommandLineFlags(pflag.CommandLine)
	pflag.BoolVar(&storePassword, "store-password", false, "Prompt for the MyMazda password, save it in the system keyring under --keyring-name, and exit")
	pflag.Parse()

	err := run(cfg, storePassword)
	log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, storePassword bool) error {
	if err := cfg.ReadFromEnvironment(); err != nil {
		return err
	}
	if cfg.Verbose {
		log.SetLevel(log.LevelDebug)
	}

	if storePassword {
		password, err := config.ReadSecret("MyMazda password")
		if err != nil {
			return err
		}
		if err := cfg.SavePasswordToKeyring(password); err != nil {
			return err
		}
		log.Info("Saved password to keyring entry '%s'", cfg.KeyringName)
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.LoadCredentials(); err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if cfg.Email == "" || cfg.Password == "" {
		log.Warning("%s; /vehicles and /startEngine will fail", upstream.ErrMissingCredentials)
	}
	if cfg.APIKey == "" {
		log.Warning("%s is not set; protected routes will fail", config.EnvAPIKey)
	}
	if cfg.Host != "localhost" && cfg.Host != "127.0.0.1" && !cfg.TLS() {
		fmt.Fprintln(os.Stderr, nonLocalhostWarning)
	}

	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}

	log.Debug("Creating relay using driver %s", cfg.Driver)
	handler := relay.RequestID(relay.New(*cfg, factory))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return listenAndServe(ctx, cfg, handler)
}

// newFactory returns a factory for the configured driver. The rest driver is built from cfg so that
// it reaches the configured gateway.
func newFactory(cfg *config.Config) (*upstream.Factory, error) {
	if cfg.Driver == rest.DriverName {
		return upstream.NewFactory(cfg.Credentials(), rest.Export(rest.Options{BaseURL: cfg.UpstreamURL})), nil
	}
	return upstream.NewFactoryForDriver(cfg.Credentials(), cfg.Driver)
}
