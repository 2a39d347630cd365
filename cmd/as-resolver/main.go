package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/route-beacon/as-resolver/internal/classify"
	"github.com/route-beacon/as-resolver/internal/config"
	"github.com/route-beacon/as-resolver/internal/db"
	"github.com/route-beacon/as-resolver/internal/dump"
	"github.com/route-beacon/as-resolver/internal/hostlookup"
	"github.com/route-beacon/as-resolver/internal/metrics"
	"github.com/route-beacon/as-resolver/internal/registry"
	"github.com/route-beacon/as-resolver/internal/report"
	"github.com/route-beacon/as-resolver/internal/rib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		runMigrate(os.Args[2:])
	case "import-registry":
		runImportRegistry(os.Args[2:])
	case "--help", "-h", "help":
		printUsage()
	default:
		os.Exit(runResolve(os.Args[1:]))
	}
}

func printUsage() {
	fmt.Println("Usage: as-resolver [options] <dump> <ipv4-address|host>...")
	fmt.Println("       as-resolver <command> [options]")
	fmt.Println()
	fmt.Println("Resolves each address to the origin AS of the routes covering it in")
	fmt.Println("a BGP table dump. <dump> is an MRT file (decoded with dump.decoder),")
	fmt.Println("a decoded *.txt[.gz|.zst|.bz2|.lz4] file, kafka:<topic>, or - for stdin.")
	fmt.Println("Host names are looked up first and reported as host[address].")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate                      Create the as_names registry table")
	fmt.Println("  import-registry [<location>] Load an autnums.html path or URL into as_names")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

type cliArgs struct {
	configPath string
	logLevel   string
	positional []string
}

func parseFlags(args []string) (cliArgs, error) {
	var out cliArgs
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "--log-level":
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s requires a value", args[i])
			}
			if args[i] == "--config" {
				out.configPath = args[i+1]
			} else {
				out.logLevel = args[i+1]
			}
			i++
		default:
			if strings.HasPrefix(args[i], "--") {
				return out, fmt.Errorf("unknown option %s", args[i])
			}
			out.positional = append(out.positional, args[i])
		}
	}
	return out, nil
}

func mustParseFlags(args []string) cliArgs {
	cli, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}
	return cli
}

func loadConfig(cli cliArgs) (*config.Config, *zap.Logger) {
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if cli.logLevel != "" {
		cfg.Service.LogLevel = cli.logLevel
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func dumpOptions(cfg *config.Config) (dump.Options, error) {
	tlsCfg, err := cfg.Kafka.BuildTLSConfig()
	if err != nil {
		return dump.Options{}, fmt.Errorf("building kafka TLS config: %w", err)
	}
	return dump.Options{
		Format:       cfg.Dump.Format,
		Decoder:      cfg.Dump.Decoder,
		MaxLineBytes: cfg.Dump.MaxLineBytes,
		Kafka: dump.KafkaOptions{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			FetchMaxBytes: cfg.Kafka.FetchMaxBytes,
			IdleTimeout:   time.Duration(cfg.Kafka.IdleTimeoutMs) * time.Millisecond,
			TLS:           tlsCfg,
			SASL:          cfg.Kafka.BuildSASLMechanism(),
		},
	}, nil
}

func runResolve(args []string) int {
	cli := mustParseFlags(args)
	if len(cli.positional) < 2 {
		fmt.Fprintln(os.Stderr, "Error: a dump and at least one address are required")
		fmt.Fprintln(os.Stderr)
		printUsage()
		return 1
	}
	location, addrs := cli.positional[0], cli.positional[1:]

	cfg, logger := loadConfig(cli)
	defer logger.Sync()

	metrics.Register()

	opts, err := dumpOptions(cfg)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}

	sigs := newPhaseSignals(logger)
	sigs.watch(os.Interrupt, syscall.SIGTERM)
	defer sigs.stop()

	targets := expandArguments(sigs.begin("lookup"), cfg, addrs, logger.Named("lookup"))

	table, err := classify.NewTable(len(targets))
	if err != nil {
		logger.Error("allocating classification table", zap.Error(err))
		return 1
	}

	resolver := rib.NewResolver(table, targets, cfg.Dump.ProgressInterval, logger.Named("rib"))
	if len(resolver.Targets()) == 0 {
		logger.Error("no valid IPv4 address or resolvable host given", zap.Strings("args", addrs))
		return 1
	}

	logger.Info("starting as-resolver",
		zap.String("dump", location),
		zap.Int("addresses", len(resolver.Targets())),
		zap.String("registry", cfg.Registry.Kind),
	)

	resolveDump(sigs.begin("dump"), location, opts, resolver, logger)

	ctx := sigs.begin("registry")
	reg, closeReg := openRegistry(ctx, cfg, logger.Named("registry"))
	defer closeReg()

	res, err := report.CrossReference(ctx, reg, table, logger.Named("report"))
	if err != nil {
		logger.Error("registry unavailable, addresses reported without names", zap.Error(err))
	}

	if err := report.Write(os.Stdout, res); err != nil {
		logger.Error("writing report", zap.Error(err))
	}
	report.Observe(res)

	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("writing metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
	}

	logger.Info("as-resolver finished",
		zap.Int("named", len(res.Named)),
		zap.Int("unnamed", len(res.Unnamed)),
		zap.Int("unknown", len(res.Unknown)),
	)
	return 0
}

// resolveDump streams the dump into the resolver. Failures are logged; the
// table keeps whatever was classified before them.
func resolveDump(ctx context.Context, location string, opts dump.Options, resolver *rib.Resolver, logger *zap.Logger) {
	start := time.Now()
	defer func() {
		metrics.RunDuration.WithLabelValues("dump").Observe(time.Since(start).Seconds())
	}()

	src, err := dump.Open(ctx, location, opts, logger.Named("dump"))
	if err != nil {
		logger.Error("dump unavailable, all addresses stay unknown", zap.String("dump", location), zap.Error(err))
		return
	}

	stats, runErr := resolver.Run(ctx, src)
	closeErr := src.Close()

	switch {
	case runErr != nil:
		logger.Error("dump stream failed, reporting partial results", zap.Error(runErr))
	case closeErr != nil && ctx.Err() == nil:
		logger.Error("dump decoder failed, reporting partial results", zap.Error(closeErr))
	}

	logger.Info("dump processed",
		zap.Int64("lines", stats.Lines),
		zap.Int64("accepted", stats.Accepted),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("malformed", stats.Malformed),
		zap.Int64("no_path", stats.NoPath),
		zap.Int64("prefix_errors", stats.PrefixErrors),
		zap.Int64("matches", stats.Matches),
		zap.Duration("took", time.Since(start)),
	)
}

// expandArguments looks up host name arguments. Address literals never
// touch DNS, so a missing resolv.conf only matters when a host is given.
func expandArguments(ctx context.Context, cfg *config.Config, args []string, logger *zap.Logger) []rib.Target {
	var r hostlookup.Resolver
	if hostlookup.NeedsLookup(args) {
		dr, err := hostlookup.NewDNSResolver(cfg.Lookup, logger)
		if err != nil {
			logger.Error("host lookup unavailable", zap.Error(err))
		} else {
			r = dr
		}
	}
	return hostlookup.Expand(ctx, r, args, logger)
}

// unavailableRegistry stands in when the configured registry cannot be reached.
type unavailableRegistry struct{ err error }

func (u unavailableRegistry) Each(context.Context, func(registry.Entry) error) error { return u.err }

func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (registry.Registry, func()) {
	if cfg.Registry.Kind != "postgres" {
		reg, err := registry.New(cfg.Registry, nil, logger)
		if err != nil {
			return unavailableRegistry{err}, func() {}
		}
		return reg, func() {}
	}

	pool, err := db.NewPool(ctx, cfg.Postgres)
	if err != nil {
		metrics.StreamUnavailableTotal.WithLabelValues("registry").Inc()
		return unavailableRegistry{fmt.Errorf("%w: %v", registry.ErrUnavailable, err)}, func() {}
	}
	reg, err := registry.New(cfg.Registry, pool, logger)
	if err != nil {
		pool.Close()
		return unavailableRegistry{err}, func() {}
	}
	logger.Info("using postgres registry", zap.String("dsn", redactDSN(cfg.Postgres.DSN)))
	return reg, pool.Close
}

func runMigrate(args []string) {
	cfg, logger := loadConfig(mustParseFlags(args))
	defer logger.Sync()

	if cfg.Postgres.DSN == "" {
		logger.Fatal("postgres.dsn is required for migrate")
	}

	logger.Info("running migrations",
		zap.String("dsn", redactDSN(cfg.Postgres.DSN)),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, db.Migrations(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runImportRegistry(args []string) {
	cli := mustParseFlags(args)
	cfg, logger := loadConfig(cli)
	defer logger.Sync()

	if cfg.Postgres.DSN == "" {
		logger.Fatal("postgres.dsn is required for import-registry")
	}

	location := cfg.Registry.Location
	if len(cli.positional) > 0 {
		location = cli.positional[0]
	}
	if location == "" {
		logger.Fatal("no registry location given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	src := registry.NewHTMLDocument(location, logger.Named("registry"))
	n, err := registry.Import(ctx, pool, src, logger)
	if err != nil {
		if errors.Is(err, registry.ErrUnavailable) {
			logger.Fatal("registry document unavailable", zap.String("location", location), zap.Error(err))
		}
		logger.Fatal("registry import failed", zap.Error(err))
	}

	logger.Info("import complete", zap.String("location", location), zap.Int64("rows", n))
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
