package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/vehicle-relay/mazda-relay/internal/log"
)

const (
	keyringServiceName     = "com.mazda-relay.auth"
	keyringPasswordService = "mymazdaPassword"
	keyringDirectory       = "~/.mazda_relay"
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

// Type implements pflag.Value.
func (b backendType) Type() string {
	return "string"
}

// promptWriter returns the terminal used for interactive prompts.
func promptWriter() (io.Writer, error) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return os.Stdout, nil
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return os.Stderr, nil
	}
	return nil, fmt.Errorf("no terminal output available for password prompt")
}

// ReadSecret prompts for a value without echoing it to the terminal.
func ReadSecret(prompt string) (string, error) {
	w, err := promptWriter()
	if err != nil {
		return "", err
	}
	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	return string(b), nil
}

// getPassword unlocks file-backed keyrings.
func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}
	password, err := ReadSecret(prompt)
	if err != nil {
		return "", err
	}
	c.password = &password
	return password, nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	keyring.Debug = c.Debug
	return keyring.Open(c.Backend)
}

func (c *Config) keyringEntry() string {
	return keyringPasswordService + "." + c.KeyringName
}

// LoadCredentials fills in the MyMazda password from the system keyring when it was not provided
// through the environment and a keyring entry is named. Call this before serving requests so that
// any keyring unlock prompt happens at startup.
func (c *Config) LoadCredentials() error {
	if c.Password != "" || c.KeyringName == "" {
		return nil
	}
	password, err := c.LoadPasswordFromKeyring()
	if err != nil {
		return err
	}
	c.Password = password
	return nil
}

// LoadPasswordFromKeyring reads the MyMazda password stored under c.KeyringName.
func (c *Config) LoadPasswordFromKeyring() (string, error) {
	if c.KeyringName == "" {
		return "", ErrKeyringNotNamed
	}
	kr, err := c.openKeyring()
	if err != nil {
		return "", err
	}
	item, err := kr.Get(c.keyringEntry())
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("could not load password %q: %w", c.KeyringName, ErrKeyNotFound)
		}
		return "", fmt.Errorf("could not load password: %s", err)
	}
	log.Debug("Loaded MyMazda password from keyring entry '%s'", c.KeyringName)
	return string(item.Data), nil
}

// SavePasswordToKeyring writes the MyMazda password to the system keyring under c.KeyringName.
func (c *Config) SavePasswordToKeyring(password string) error {
	if c.KeyringName == "" {
		return ErrKeyringNotNamed
	}
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:   c.keyringEntry(),
		Data:  []byte(password),
		Label: "MyMazda password (" + c.KeyringName + ")",
	}); err != nil {
		return fmt.Errorf("failed to store password in keyring: %s", err)
	}
	return nil
}

// DeletePasswordFromKeyring removes the stored MyMazda password.
func (c *Config) DeletePasswordFromKeyring() error {
	if c.KeyringName == "" {
		return ErrKeyringNotNamed
	}
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	return kr.Remove(c.keyringEntry())
}
