// Package dump opens routing dump line streams: decoded text files,
// a decoder subprocess reading a binary MRT file, or a Kafka topic.
package dump

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/route-beacon/as-resolver/internal/metrics"
	"go.uber.org/zap"
)

// ErrStreamUnavailable is wrapped when a dump cannot be opened or started.
var ErrStreamUnavailable = errors.New("dump stream unavailable")

const kafkaScheme = "kafka:"

// Source is a line stream. Scan/Text/Err follow bufio.Scanner semantics.
type Source interface {
	Scan() bool
	Text() string
	Err() error
	Close() error
}

// Options selects how a location is opened.
type Options struct {
	Format       string   // auto, text or mrt
	Decoder      []string // command line; the location is appended
	MaxLineBytes int
	Kafka        KafkaOptions
}

// Open dispatches on the location:
//
//	"-"            standard input, decoded text
//	"kafka:<topic>" one dump line per record value
//	"*.txt[.gz|.zst]" decoded text file
//	anything else   decoder subprocess
func Open(ctx context.Context, location string, opts Options, logger *zap.Logger) (Source, error) {
	src, err := open(ctx, location, opts, logger)
	if err != nil {
		metrics.StreamUnavailableTotal.WithLabelValues("dump").Inc()
		return nil, err
	}
	return src, nil
}

func open(ctx context.Context, location string, opts Options, logger *zap.Logger) (Source, error) {
	switch {
	case location == "-":
		logger.Info("reading decoded dump from stdin")
		return newScannerSource(io.NopCloser(os.Stdin), opts.MaxLineBytes), nil
	case strings.HasPrefix(location, kafkaScheme):
		topic := strings.TrimPrefix(location, kafkaScheme)
		return OpenKafka(ctx, topic, opts.Kafka, logger)
	case isText(location, opts.Format):
		return OpenTextFile(location, opts.MaxLineBytes, logger)
	default:
		return StartDecoder(ctx, opts.Decoder, location, opts.MaxLineBytes, logger)
	}
}

func isText(location, format string) bool {
	switch format {
	case "text":
		return true
	case "mrt":
		return false
	}
	return strings.Contains(strings.ToLower(location), ".txt")
}

// scannerSource adapts a bufio.Scanner over a ReadCloser.
type scannerSource struct {
	*bufio.Scanner
	closer io.Closer
}

func newScannerSource(rc io.ReadCloser, maxLineBytes int) *scannerSource {
	s := bufio.NewScanner(rc)
	if maxLineBytes > 0 {
		s.Buffer(make([]byte, 0, min(64*1024, maxLineBytes)), maxLineBytes)
	}
	return &scannerSource{Scanner: s, closer: rc}
}

func (s *scannerSource) Close() error {
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("closing dump: %w", err)
	}
	return nil
}
