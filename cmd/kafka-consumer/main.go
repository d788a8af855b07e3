package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fikovnik/kafka-consumer/internal/backend"
	"github.com/fikovnik/kafka-consumer/internal/config"
	"github.com/fikovnik/kafka-consumer/internal/fetch"
	"github.com/fikovnik/kafka-consumer/internal/logging"
	"github.com/fikovnik/kafka-consumer/internal/metrics"
	"github.com/fikovnik/kafka-consumer/internal/objectstore"
	"github.com/fikovnik/kafka-consumer/internal/objectstore/s3"
	"github.com/fikovnik/kafka-consumer/internal/sink"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath  string
	broker      string
	groupID     string
	clientID    string
	client      string
	dialTimeout time.Duration
	validate    bool
	logLevel    string
	logFormat   string
	metricsFile string

	topic       string
	partition   int
	offset      int64
	destination string

	version bool
	set     map[string]bool
}

// shortFlags maps one-letter aliases to the flag they set.
var shortFlags = map[string]string{
	"b": "broker",
	"g": "group-id",
	"t": "topic",
	"p": "partition",
	"o": "offset",
	"d": "destination",
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	def := config.Default()
	o := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("kafka-consumer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to configuration file (default: $"+config.EnvConfigPath+")")
	fs.StringVar(&o.broker, "broker", strings.Join(def.Kafka.Brokers, ","), "Broker address host:port, comma-separated for several")
	fs.StringVar(&o.groupID, "group-id", def.Kafka.GroupID, "Consumer group ID")
	fs.StringVar(&o.topic, "topic", "", "Topic to read from (required)")
	fs.IntVar(&o.partition, "partition", 0, "Partition to read from (required)")
	fs.Int64Var(&o.offset, "offset", 0, "Absolute offset of the record (required)")
	fs.StringVar(&o.destination, "destination", "", "File path, - for stdout, or s3://bucket/key (required)")
	fs.StringVar(&o.client, "client", def.Kafka.Client, "Client library: "+strings.Join(backend.Names(), ", "))
	fs.StringVar(&o.clientID, "client-id", def.Kafka.ClientID, "Client ID sent to the broker")
	fs.DurationVar(&o.dialTimeout, "dial-timeout", def.Kafka.DialTimeout, "Broker dial timeout (0 uses the library default)")
	fs.BoolVar(&o.validate, "validate-offset", def.Kafka.ValidateOffset, "Reject offsets outside the partition's current range before fetching")
	fs.StringVar(&o.logLevel, "log-level", def.Observability.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&o.logFormat, "log-format", def.Observability.LogFormat, "Log format: json, text")
	fs.StringVar(&o.metricsFile, "metrics-file", def.Observability.MetricsFile, "Write Prometheus metrics to this file on exit")
	fs.BoolVar(&o.version, "version", false, "Print version information and exit")

	fs.StringVar(&o.broker, "b", o.broker, "Short for --broker")
	fs.StringVar(&o.groupID, "g", o.groupID, "Short for --group-id")
	fs.StringVar(&o.topic, "t", "", "Short for --topic")
	fs.IntVar(&o.partition, "p", 0, "Short for --partition")
	fs.Int64Var(&o.offset, "o", 0, "Short for --offset")
	fs.StringVar(&o.destination, "d", "", "Short for --destination")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: kafka-consumer --topic <name> --partition <n> --offset <n> --destination <path> [options]

Fetch the single record at topic/partition@offset and write its value verbatim
to the destination.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		if long, ok := shortFlags[f.Name]; ok {
			o.set[long] = true
			return
		}
		o.set[f.Name] = true
	})

	if o.version {
		return o, nil
	}
	var missing []string
	for _, name := range []string{"topic", "partition", "offset", "destination"} {
		if !o.set[name] {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	if o.topic == "" {
		return nil, errors.New("--topic must not be empty")
	}
	if o.partition < 0 || o.partition > math.MaxInt32 {
		return nil, fmt.Errorf("--partition %d is outside [0, %d]", o.partition, math.MaxInt32)
	}
	return o, nil
}

// loadConfig layers explicitly set flags over the file and environment.
func loadConfig(o *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.set["broker"] {
		cfg.Kafka.Brokers = config.SplitList(o.broker)
	}
	if o.set["group-id"] {
		cfg.Kafka.GroupID = o.groupID
	}
	if o.set["client-id"] {
		cfg.Kafka.ClientID = o.clientID
	}
	if o.set["client"] {
		cfg.Kafka.Client = o.client
	}
	if o.set["dial-timeout"] {
		cfg.Kafka.DialTimeout = o.dialTimeout
	}
	if o.set["validate-offset"] {
		cfg.Kafka.ValidateOffset = o.validate
	}
	if o.set["log-level"] {
		cfg.Observability.LogLevel = o.logLevel
	}
	if o.set["log-format"] {
		cfg.Observability.LogFormat = o.logFormat
	}
	if o.set["metrics-file"] {
		cfg.Observability.MetricsFile = o.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func banner(b backend.Backend) string {
	return fmt.Sprintf("kafka-consumer %s (%s %s)", version, b.Module, b.Version())
}

// run returns the process exit code. A failed write to the destination
// panics.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	b, err := backend.Lookup(cfg.Kafka.Client)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	if o.version {
		fmt.Fprintf(stdout, "%s (built %s)\n", banner(b), buildTime)
		return exitOK
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Observability.LogLevel),
		Format: logging.ParseFormat(cfg.Observability.LogFormat),
		Output: stderr,
	}).WithCorrelationID(uuid.New().String())

	var (
		fetchMetrics *metrics.FetchMetrics
		storeMetrics objectstore.MetricsRecorder
	)
	if cfg.Observability.MetricsFile != "" {
		reg := prometheus.NewRegistry()
		fetchMetrics = metrics.NewFetchMetricsWithRegistry(reg)
		storeMetrics = metrics.NewObjectStoreMetricsWithRegistry(reg)
		defer func() {
			if err := metrics.WriteTextfile(cfg.Observability.MetricsFile, reg); err != nil {
				logger.Warnf("failed to write metrics file", map[string]any{
					"path":  cfg.Observability.MetricsFile,
					"error": err.Error(),
				})
			}
		}()
	}

	out, err := sink.New(o.destination, sink.Options{
		Stdout:    stdout,
		OpenStore: storeOpener(cfg.ObjectStore, storeMetrics),
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	if o.destination != sink.Stdout {
		fmt.Fprintln(stdout, banner(b))
	}

	loc := fetch.Location{Topic: o.topic, Partition: int32(o.partition), Offset: o.offset}
	logger.Infof("fetching record", map[string]any{
		"client":   b.Name,
		"brokers":  cfg.Kafka.Brokers,
		"groupId":  cfg.Kafka.GroupID,
		"location": loc.String(),
	})

	fetcher := fetch.New(fetch.ConnectionConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.GroupID,
		ClientID:    cfg.Kafka.ClientID,
		DialTimeout: cfg.Kafka.DialTimeout,
	}, fetch.Options{
		Dialer:         b.Dialer(logger),
		Logger:         logger,
		Metrics:        fetchMetrics,
		ValidateOffset: cfg.Kafka.ValidateOffset,
	})

	payload, err := fetcher.Fetch(ctx, loc)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	if err := out.Write(ctx, payload); err != nil {
		panic(err)
	}
	return exitOK
}

func storeOpener(cfg config.ObjectStoreConfig, rec objectstore.MetricsRecorder) sink.StoreOpener {
	return func(ctx context.Context, bucket string) (objectstore.Store, error) {
		store, err := s3.New(ctx, s3.Config{
			Bucket:          bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			UsePathStyle:    cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return objectstore.NewInstrumentedStore(store, rec), nil
	}
}
