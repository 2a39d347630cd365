package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{LogLevel: "info"},
		Dump: DumpConfig{
			Format:           "auto",
			Decoder:          []string{"bgpdump", "-Mv"},
			ProgressInterval: 100000,
			MaxLineBytes:     1024,
		},
		Kafka: KafkaConfig{
			FetchMaxBytes: 52428800,
			IdleTimeoutMs: 1000,
		},
		Registry: RegistryConfig{Kind: "html", Location: "autnums.html"},
		Postgres: PostgresConfig{MaxConns: 4},
		Lookup:   LookupConfig{ResolvConf: "/etc/resolv.conf", TimeoutMs: 5000},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_BadFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Dump.Format = "json"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown dump.format")
	}
}

func TestValidate_NoDecoder(t *testing.T) {
	cfg := validConfig()
	cfg.Dump.Decoder = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty decoder with auto format")
	}
}

func TestValidate_NoDecoderTextFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Dump.Decoder = nil
	cfg.Dump.Format = "text"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("text format needs no decoder, got error: %v", err)
	}
}

func TestValidate_NegativeProgressInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Dump.ProgressInterval = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative progress_interval")
	}
}

func TestValidate_MaxLineBytesZero(t *testing.T) {
	cfg := validConfig()
	cfg.Dump.MaxLineBytes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_line_bytes = 0")
	}
}

func TestValidate_IdleTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.IdleTimeoutMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for idle_timeout_ms = 0")
	}
}

func TestValidate_RegistryHTMLNoLocation(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.Location = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty registry.location")
	}
}

func TestValidate_RegistryPostgresNoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.Kind = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for postgres registry without DSN")
	}
}

func TestValidate_RegistryPostgresWithDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.Kind = "postgres"
	cfg.Postgres.DSN = "postgres://localhost/asnames"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_RegistryUnknownKind(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.Kind = "whois"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown registry.kind")
	}
}

func TestValidate_MaxConnsZero(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.MaxConns = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_conns = 0")
	}
}

func TestValidate_LookupTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Lookup.TimeoutMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for lookup.timeout_ms = 0")
	}
}

func TestValidate_LookupNeedsNameservers(t *testing.T) {
	cfg := validConfig()
	cfg.Lookup.ResolvConf = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without resolv_conf or servers")
	}
	cfg.Lookup.Servers = []string{"192.0.2.53"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected servers to satisfy lookup, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dump.ProgressInterval != 100000 {
		t.Errorf("expected progress_interval 100000, got %d", cfg.Dump.ProgressInterval)
	}
	if len(cfg.Dump.Decoder) != 2 || cfg.Dump.Decoder[0] != "bgpdump" {
		t.Errorf("expected default bgpdump decoder, got %v", cfg.Dump.Decoder)
	}
	if cfg.Registry.Location != "autnums.html" {
		t.Errorf("expected default registry location, got %q", cfg.Registry.Location)
	}
	if cfg.Lookup.ResolvConf != "/etc/resolv.conf" || cfg.Lookup.TimeoutMs != 5000 {
		t.Errorf("unexpected lookup defaults %+v", cfg.Lookup)
	}
}

func writeYAML(t *testing.T, data string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_FileValues(t *testing.T) {
	p := writeYAML(t, `
dump:
  format: text
  progress_interval: 50
registry:
  location: "https://www.cidr-report.org/as2.0/autnums.html"
kafka:
  brokers:
    - "localhost:9092"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dump.Format != "text" || cfg.Dump.ProgressInterval != 50 {
		t.Errorf("unexpected dump config: %+v", cfg.Dump)
	}
	if cfg.Registry.Location != "https://www.cidr-report.org/as2.0/autnums.html" {
		t.Errorf("unexpected registry location %q", cfg.Registry.Location)
	}
	if len(cfg.Kafka.Brokers) != 1 {
		t.Errorf("expected 1 broker, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	t.Setenv("AS_RESOLVER_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvBrokersCommaSeparated(t *testing.T) {
	t.Setenv("AS_RESOLVER_KAFKA__BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("expected two brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_EnvLookupServers(t *testing.T) {
	t.Setenv("AS_RESOLVER_LOOKUP__SERVERS", "192.0.2.53,198.51.100.53:5353")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Lookup.Servers) != 2 || cfg.Lookup.Servers[1] != "198.51.100.53:5353" {
		t.Errorf("expected two servers, got %v", cfg.Lookup.Servers)
	}
}

func TestLoad_EnvDecoderCommandLine(t *testing.T) {
	t.Setenv("AS_RESOLVER_DUMP__DECODER", "bgpscanner -L")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Dump.Decoder) != 2 || cfg.Dump.Decoder[0] != "bgpscanner" || cfg.Dump.Decoder[1] != "-L" {
		t.Errorf("expected [bgpscanner -L], got %v", cfg.Dump.Decoder)
	}
}

func TestLoad_EnvPostgresRegistryRequiresDSN(t *testing.T) {
	t.Setenv("AS_RESOLVER_REGISTRY__KIND", "postgres")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for postgres registry without DSN via env")
	}
}

func TestBuildTLSConfig_Disabled(t *testing.T) {
	k := &KafkaConfig{}
	tlsCfg, err := k.BuildTLSConfig()
	if err != nil || tlsCfg != nil {
		t.Errorf("expected nil config and no error, got %v, %v", tlsCfg, err)
	}
}

func TestBuildSASLMechanism(t *testing.T) {
	k := &KafkaConfig{}
	if k.BuildSASLMechanism() != nil {
		t.Error("expected nil mechanism when SASL disabled")
	}
	k.SASL = SASLConfig{Enabled: true, Mechanism: "plain", Username: "u", Password: "p"}
	if m := k.BuildSASLMechanism(); m == nil || m.Name() != "PLAIN" {
		t.Errorf("expected PLAIN mechanism, got %v", m)
	}
}
