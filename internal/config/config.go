package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

const envPrefix = "AS_RESOLVER_"

type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	Dump     DumpConfig     `koanf:"dump"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Registry RegistryConfig `koanf:"registry"`
	Postgres PostgresConfig `koanf:"postgres"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Lookup   LookupConfig   `koanf:"lookup"`
}

type ServiceConfig struct {
	LogLevel string `koanf:"log_level"`
}

type DumpConfig struct {
	// Format is "auto", "text" or "mrt". Auto treats names containing
	// ".txt" as already-decoded text and runs the decoder on anything else.
	Format           string   `koanf:"format"`
	Decoder          []string `koanf:"decoder"`
	ProgressInterval int      `koanf:"progress_interval"`
	MaxLineBytes     int      `koanf:"max_line_bytes"`
}

type KafkaConfig struct {
	Brokers       []string   `koanf:"brokers"`
	ClientID      string     `koanf:"client_id"`
	TLS           TLSConfig  `koanf:"tls"`
	SASL          SASLConfig `koanf:"sasl"`
	FetchMaxBytes int32      `koanf:"fetch_max_bytes"`
	IdleTimeoutMs int        `koanf:"idle_timeout_ms"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type RegistryConfig struct {
	// Kind is "html" (autnums.html path or URL) or "postgres".
	Kind     string `koanf:"kind"`
	Location string `koanf:"location"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// LookupConfig controls how host name arguments are resolved to IPv4
// addresses. Servers overrides the nameservers read from ResolvConf.
type LookupConfig struct {
	ResolvConf string   `koanf:"resolv_conf"`
	Servers    []string `koanf:"servers"`
	TimeoutMs  int      `koanf:"timeout_ms"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load YAML file first.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: AS_RESOLVER_REGISTRY__KIND → registry.kind
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			LogLevel: "info",
		},
		Dump: DumpConfig{
			Format:           "auto",
			Decoder:          []string{"bgpdump", "-Mv"},
			ProgressInterval: 100000,
			MaxLineBytes:     1048576,
		},
		Kafka: KafkaConfig{
			ClientID:      "as-resolver",
			FetchMaxBytes: 52428800,
			IdleTimeoutMs: 10000,
		},
		Registry: RegistryConfig{
			Kind:     "html",
			Location: "autnums.html",
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
			MinConns: 0,
		},
		Lookup: LookupConfig{
			ResolvConf: "/etc/resolv.conf",
			TimeoutMs:  5000,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Split comma-separated env strings for slice fields.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if len(cfg.Lookup.Servers) == 1 && strings.Contains(cfg.Lookup.Servers[0], ",") {
		cfg.Lookup.Servers = strings.Split(cfg.Lookup.Servers[0], ",")
	}
	// The decoder is a command line; a single env string splits on spaces.
	if len(cfg.Dump.Decoder) == 1 && strings.Contains(cfg.Dump.Decoder[0], " ") {
		cfg.Dump.Decoder = strings.Fields(cfg.Dump.Decoder[0])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Dump.Format {
	case "auto", "text", "mrt":
	default:
		return fmt.Errorf("config: dump.format must be auto, text or mrt (got %q)", c.Dump.Format)
	}
	if c.Dump.Format != "text" && len(c.Dump.Decoder) == 0 {
		return fmt.Errorf("config: dump.decoder is required unless dump.format is text")
	}
	if c.Dump.ProgressInterval < 0 {
		return fmt.Errorf("config: dump.progress_interval must be >= 0 (got %d)", c.Dump.ProgressInterval)
	}
	if c.Dump.MaxLineBytes <= 0 {
		return fmt.Errorf("config: dump.max_line_bytes must be > 0 (got %d)", c.Dump.MaxLineBytes)
	}
	if c.Kafka.FetchMaxBytes <= 0 {
		return fmt.Errorf("config: kafka.fetch_max_bytes must be > 0 (got %d)", c.Kafka.FetchMaxBytes)
	}
	if c.Kafka.IdleTimeoutMs <= 0 {
		return fmt.Errorf("config: kafka.idle_timeout_ms must be > 0 (got %d)", c.Kafka.IdleTimeoutMs)
	}
	switch c.Registry.Kind {
	case "html":
		if c.Registry.Location == "" {
			return fmt.Errorf("config: registry.location is required for registry.kind html")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: postgres.dsn is required for registry.kind postgres")
		}
	default:
		return fmt.Errorf("config: registry.kind must be html or postgres (got %q)", c.Registry.Kind)
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
	}
	if c.Postgres.MinConns < 0 {
		return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
	}
	if c.Lookup.TimeoutMs <= 0 {
		return fmt.Errorf("config: lookup.timeout_ms must be > 0 (got %d)", c.Lookup.TimeoutMs)
	}
	if c.Lookup.ResolvConf == "" && len(c.Lookup.Servers) == 0 {
		return fmt.Errorf("config: lookup.resolv_conf or lookup.servers is required")
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
