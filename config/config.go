// Package config loads runtime settings from the environment and an
// optional configuration file, grounded on the teacher's
// `cli/viper/config.go` pattern but trimmed of its cobra flag-binding
// half, which has no counterpart once the CLI surface is out of scope.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lib "github.com/spf13/viper"
	"go.bryk.io/rmi/errors"
	"go.bryk.io/rmi/reliability"
)

// envPrefix is prepended to every environment variable this package
// reads, e.g. `RMI_BROKER_URL`.
const envPrefix = "rmi"

// Settings holds every runtime knob needed to stand up an agent or
// controller instance, per §6.
type Settings struct {
	// BrokerURL is the endpoint passed to broker.ParseURL.
	BrokerURL string `mapstructure:"broker_url"`
	// PendingRoot is the on-disk directory backing the pending queue
	// (§4.H). Defaults to /var/lib/{name}/messaging/pending.
	PendingRoot string `mapstructure:"pending_root"`
	// Identity names this instance for logging and generated queue
	// names.
	Identity string `mapstructure:"identity"`
	// ReconnectDelay overrides reliability.Delay when non-zero.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	// ResendDelay overrides reliability.ResendDelay when non-zero.
	ResendDelay time.Duration `mapstructure:"resend_delay"`
}

// defaults fills in every field Load did not find a value for.
func (s *Settings) defaults(name string) {
	if s.Identity == "" {
		s.Identity = name
	}
	if s.PendingRoot == "" {
		s.PendingRoot = filepath.Join("/var/lib", s.Identity, "messaging", "pending")
	}
	if s.ReconnectDelay == 0 {
		s.ReconnectDelay = reliability.Delay
	}
	if s.ResendDelay == 0 {
		s.ResendDelay = reliability.ResendDelay
	}
}

// Option adjusts the viper instance Load builds before reading values,
// mirroring the teacher's ConfigOptions shape as functional options
// instead of a struct of optional fields.
type Option func(*lib.Viper)

// WithConfigFile adds an additional search path for a "config.yaml" (or
// file/ext per WithFileName) beyond the defaults (/etc/{name},
// $HOME/{name}, $HOME/.{name}, the working directory).
func WithConfigFile(dir string) Option {
	return func(vp *lib.Viper) { vp.AddConfigPath(dir) }
}

// WithFileName overrides the default "config" base file name and "yaml"
// extension.
func WithFileName(name, ext string) Option {
	return func(vp *lib.Viper) {
		vp.SetConfigName(name)
		vp.SetConfigType(ext)
	}
}

// Load reads Settings for an instance identified by name: environment
// variables prefixed `RMI_` take precedence, then an optional
// "config.yaml" found in one of the default search paths or a path
// added via WithConfigFile, then the §4.D/§6 defaults. A missing
// configuration file is not an error; a malformed one is.
func Load(name string, opts ...Option) (*Settings, error) {
	vp := lib.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	// Unmarshal only sees keys viper knows about; bind each one so an
	// environment value is used even when no configuration file sets it.
	for _, key := range []string{"broker_url", "pending_root", "identity", "reconnect_delay", "resend_delay"} {
		_ = vp.BindEnv(key)
	}

	vp.SetConfigName("config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Join("/etc", name))
	if home, err := os.UserHomeDir(); err == nil {
		vp.AddConfigPath(filepath.Join(home, name))
		vp.AddConfigPath(filepath.Join(home, fmt.Sprintf(".%s", name)))
	}
	vp.AddConfigPath(".")

	for _, opt := range opts {
		opt(vp)
	}

	if err := vp.ReadInConfig(); err != nil {
		var notFound lib.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read configuration file")
		}
	}

	settings := &Settings{}
	if err := vp.Unmarshal(settings); err != nil {
		return nil, errors.Wrap(err, "decode configuration")
	}
	settings.defaults(name)
	return settings, nil
}
