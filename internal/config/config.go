package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ritiek/smsdb-import/internal/grouping"
	"github.com/ritiek/smsdb-import/internal/smsdb"
)

// EnvPrefix namespaces every environment variable, e.g. SMSIMPORT_LOG_LEVEL.
const EnvPrefix = "SMSIMPORT"

// KeyEnv is read for the store key when store_key is not set otherwise.
const KeyEnv = "SQLCIPHER_KEY"

const (
	KeyInput           = "input"
	KeyStore           = "store"
	KeyStoreKey        = "store_key"
	KeyBusyTimeout     = "busy_timeout"
	KeyGeneration      = "generation"
	KeyPolicy          = "policy"
	KeyWindow          = "window"
	KeyService         = "service"
	KeyContinueOnError = "continue_on_error"
	KeyDryRun          = "dry_run"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyNatsURL         = "nats_url"
	KeyNatsToken       = "nats_token"
	KeyNatsSubject     = "nats_subject"
)

type Config struct {
	InputPath       string
	StorePath       string
	StoreKey        string
	BusyTimeout     time.Duration
	Generation      string
	Policy          string
	Window          time.Duration
	Service         string
	ContinueOnError bool
	DryRun          bool
	LogLevel        string
	LogFormat       string
	NatsURL         string
	NatsToken       string
	NatsSubject     string
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyInput, "input.txt")
	v.SetDefault(KeyStore, "sms.db")
	v.SetDefault(KeyStoreKey, "")
	v.SetDefault(KeyBusyTimeout, 30*time.Second)
	v.SetDefault(KeyGeneration, "auto")
	v.SetDefault(KeyPolicy, grouping.PolicyPartition)
	v.SetDefault(KeyWindow, time.Duration(0))
	v.SetDefault(KeyService, smsdb.DefaultService)
	v.SetDefault(KeyContinueOnError, false)
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyNatsURL, "")
	v.SetDefault(KeyNatsToken, "")
	v.SetDefault(KeyNatsSubject, "smsimport.import.completed")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(KeyStoreKey, EnvPrefix+"_STORE_KEY", KeyEnv)
}

// Load reads the configuration from v. Call SetDefaults first.
func Load(v *viper.Viper) Config {
	return Config{
		InputPath:       v.GetString(KeyInput),
		StorePath:       v.GetString(KeyStore),
		StoreKey:        v.GetString(KeyStoreKey),
		BusyTimeout:     v.GetDuration(KeyBusyTimeout),
		Generation:      v.GetString(KeyGeneration),
		Policy:          v.GetString(KeyPolicy),
		Window:          v.GetDuration(KeyWindow),
		Service:         v.GetString(KeyService),
		ContinueOnError: v.GetBool(KeyContinueOnError),
		DryRun:          v.GetBool(KeyDryRun),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		NatsURL:         v.GetString(KeyNatsURL),
		NatsToken:       v.GetString(KeyNatsToken),
		NatsSubject:     v.GetString(KeyNatsSubject),
	}
}

// Validate checks the values that would otherwise only fail half way
// through a run.
func (c Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("input path is required")
	}
	if c.StorePath == "" {
		return fmt.Errorf("store path is required")
	}
	if _, err := smsdb.ParseGeneration(c.Generation); err != nil {
		return err
	}
	if c.Window < 0 {
		return fmt.Errorf("window must not be negative: %s", c.Window)
	}
	if _, err := grouping.NewPolicy(c.Policy, c.Window); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.NatsURL != "" && c.NatsSubject == "" {
		return fmt.Errorf("nats subject is required when a nats url is set")
	}
	return nil
}
