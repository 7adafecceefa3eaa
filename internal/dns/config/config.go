// Package config loads boot configuration from DNSCACHE_-prefixed
// environment variables, applying defaults and validation before the
// rest of the application sees it.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Port is the UDP port the listener binds to. A positional CLI
	// argument, when given, overrides this value.
	Port int `koanf:"port" validate:"required,gte=1,lt=65535"`

	// Workers is the number of listener worker goroutines sharing the
	// UDP socket. Zero means "use hardware parallelism, clamped to a
	// minimum of 4".
	Workers int `koanf:"workers" validate:"gte=0"`

	// UpstreamServers is a list of upstream DNS servers in ip:port
	// format. When empty, the zero-config host resolver is used instead
	// of the iterative resolver.
	UpstreamServers []string `koanf:"upstream_servers" validate:"dive,ip_port"`

	// UpstreamTimeoutMS bounds one iterative-resolver lookup as a whole,
	// across every configured server it tries. The host resolver does not
	// use it.
	UpstreamTimeoutMS int `koanf:"upstream_timeout_ms" validate:"required,gte=1"`

	// SnapshotPath, when set, persists the precompiled local-domain table
	// to a bbolt database at this path: entries registered via
	// AddLocalDomain survive a restart without being re-issued. Empty
	// means no persistence.
	SnapshotPath string `koanf:"snapshot_path"`
}

// DefaultAppConfig defines the default application configuration: no
// configured upstream servers (host resolver is used), a 5-second
// upstream timeout, and hardware-parallelism worker count.
var DefaultAppConfig = AppConfig{
	Env:               "prod",
	LogLevel:          "info",
	Port:              5353,
	Workers:           0,
	UpstreamServers:   nil,
	UpstreamTimeoutMS: 5000,
	SnapshotPath:      "",
}

// validIPPort validates an "IP:Port" formatted field.
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// envLoader loads environment variables with the "DNSCACHE_" prefix,
// lowercasing keys and splitting space/comma-delimited values into
// slices for fields like UpstreamServers.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNSCACHE_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "DNSCACHE_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}
			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}
			return key, value
		},
	}), nil)
}

// defaultLoader loads DefaultAppConfig into k via the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

// registerValidation registers the "ip_port" validation tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_port", validIPPort)
}

// Load parses environment variables into an AppConfig, applying
// defaults and validation. cliPort, when non-zero, overrides the
// DNSCACHE_PORT value, matching the positional CLI argument contract.
func Load(cliPort int) (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if cliPort != 0 {
		cfg.Port = cliPort
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
