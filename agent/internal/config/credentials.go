package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

// Credentials holds the resolved secrets for the configured delivery channel.
// Values are never read from the YAML file itself.
type Credentials struct {
	// Object storage.
	AccessKey string
	SecretKey string

	// Mail transport.
	Sender   string
	Secret   string
	Receiver string
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored; with no arguments ".env" in the working directory is used.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
		slog.Debug("config: loaded environment file", "path", f)
	}
	return nil
}

// ResolveCredentials looks up every secret the delivery channel needs and
// reports all missing ones at once, before any network activity happens.
func ResolveCredentials(d DeliveryConfig) (Credentials, error) {
	var c Credentials
	var missing []string

	need := func(dst *string, envName, service, field string) {
		*dst = lookupSecret(envName, service)
		if *dst == "" {
			if envName == "" {
				missing = append(missing, field+" (no env var configured)")
			} else {
				missing = append(missing, field+" ($"+envName+")")
			}
		}
	}

	switch d.Channel {
	case "objectstore":
		o := d.ObjectStore
		need(&c.AccessKey, o.AccessKeyEnv, o.KeyringService, "access key")
		need(&c.SecretKey, o.SecretKeyEnv, o.KeyringService, "secret key")
	case "mail":
		m := d.Mail
		need(&c.Sender, m.SenderEnv, m.KeyringService, "sender")
		need(&c.Secret, m.SecretEnv, m.KeyringService, "sender secret")
		need(&c.Receiver, m.ReceiverEnv, m.KeyringService, "receiver")
	default:
		return c, fmt.Errorf("config: unknown delivery channel %q", d.Channel)
	}

	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("config: missing %s credentials: %s",
			d.Channel, strings.Join(missing, ", "))
	}
	return c, nil
}

// lookupSecret reads envName from the environment and falls back to the OS
// keyring entry (service, envName) when the variable is empty.
func lookupSecret(envName, service string) string {
	if envName == "" {
		return ""
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v
	}
	if service == "" {
		return ""
	}
	v, err := keyring.Get(service, envName)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.Warn("config: keyring lookup failed", "service", service, "key", envName, "err", err)
		}
		return ""
	}
	return strings.TrimSpace(v)
}
