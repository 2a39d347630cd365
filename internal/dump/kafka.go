package dump

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"
)

// KafkaOptions configures the client used for kafka:<topic> dump locations.
type KafkaOptions struct {
	Brokers       []string
	ClientID      string
	FetchMaxBytes int32
	// IdleTimeout ends the stream when no record arrives for this long.
	IdleTimeout time.Duration
	TLS         *tls.Config
	SASL        sasl.Mechanism
}

const kafkaPollRecords = 1000

// recordPoller is the subset of *kgo.Client the source needs.
type recordPoller interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	Close()
}

// kafkaSource reads a topic from the start, one dump line per record value.
// There is no end-of-table marker on a topic, so the stream ends after a
// poll that stays empty for the idle timeout.
type kafkaSource struct {
	ctx         context.Context
	client      recordPoller
	idleTimeout time.Duration
	logger      *zap.Logger

	pending    []*kgo.Record
	line       string
	lastRecord time.Time
	done       bool
}

// OpenKafka consumes topic without a consumer group, starting at the
// earliest offset.
func OpenKafka(ctx context.Context, topic string, opts KafkaOptions, logger *zap.Logger) (Source, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: kafka location has no topic", ErrStreamUnavailable)
	}
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka.brokers is not configured", ErrStreamUnavailable)
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(opts.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	if opts.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(opts.ClientID))
	}
	if opts.FetchMaxBytes > 0 {
		kopts = append(kopts, kgo.FetchMaxBytes(opts.FetchMaxBytes))
	}
	if opts.TLS != nil {
		kopts = append(kopts, kgo.DialTLSConfig(opts.TLS))
	}
	if opts.SASL != nil {
		kopts = append(kopts, kgo.SASL(opts.SASL))
	}

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("%w: kafka client: %v", ErrStreamUnavailable, err)
	}

	logger.Info("reading dump from kafka",
		zap.String("topic", topic),
		zap.Strings("brokers", opts.Brokers),
		zap.Duration("idle_timeout", opts.IdleTimeout),
	)
	return newKafkaSource(ctx, client, opts.IdleTimeout, logger), nil
}

func newKafkaSource(ctx context.Context, client recordPoller, idleTimeout time.Duration, logger *zap.Logger) *kafkaSource {
	return &kafkaSource{
		ctx:         ctx,
		client:      client,
		idleTimeout: idleTimeout,
		logger:      logger,
		lastRecord:  time.Now(),
	}
}

func (k *kafkaSource) Scan() bool {
	for len(k.pending) == 0 {
		if k.done {
			return false
		}
		k.poll()
	}
	rec := k.pending[0]
	k.pending = k.pending[1:]
	k.line = strings.TrimRight(string(rec.Value), "\r\n")
	return true
}

func (k *kafkaSource) poll() {
	if err := k.ctx.Err(); err != nil {
		k.done = true
		return
	}

	pollCtx, cancel := context.WithTimeout(k.ctx, k.idleTimeout)
	defer cancel()

	fetches := k.client.PollRecords(pollCtx, kafkaPollRecords)
	if fetches.IsClientClosed() {
		k.done = true
		return
	}

	for _, e := range fetches.Errors() {
		if errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, context.Canceled) {
			continue
		}
		k.logger.Error("kafka fetch error",
			zap.String("topic", e.Topic),
			zap.Int32("partition", e.Partition),
			zap.Error(e.Err),
		)
	}

	k.pending = fetches.Records()
	if len(k.pending) > 0 {
		k.lastRecord = time.Now()
		return
	}
	if k.ctx.Err() != nil {
		k.done = true
		return
	}
	// Fetch errors can return a poll early; idleness is measured from the
	// last record, not per poll.
	if time.Since(k.lastRecord) >= k.idleTimeout {
		k.logger.Info("kafka topic idle, ending dump stream", zap.Duration("idle_timeout", k.idleTimeout))
		k.done = true
	}
}

func (k *kafkaSource) Text() string { return k.line }

// Err is always nil: fetch errors are retried by the client and logged.
func (k *kafkaSource) Err() error { return nil }

func (k *kafkaSource) Close() error {
	k.client.Close()
	return nil
}
