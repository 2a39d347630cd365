// Package rib reads pipe-delimited routing dump lines and classifies caller
// addresses by the origin AS of the prefixes that cover them.
package rib

import (
	"context"
	"fmt"

	"github.com/route-beacon/as-resolver/internal/classify"
	"github.com/route-beacon/as-resolver/internal/metrics"
	"github.com/route-beacon/as-resolver/internal/prefix"
	"go.uber.org/zap"
)

// LineSource yields dump lines. bufio.Scanner satisfies it.
type LineSource interface {
	Scan() bool
	Text() string
	Err() error
}

// Stats counts what happened to the lines of one run.
type Stats struct {
	Lines        int64
	Accepted     int64
	Duplicates   int64
	Malformed    int64
	NoPath       int64
	PrefixErrors int64
	Matches      int64
}

// Target is one caller address to resolve. Label is the table key and the
// name printed in the report; it differs from Address for looked-up hosts.
type Target struct {
	Label   string
	Address string
}

// AddressTargets wraps plain address arguments, labelled by themselves.
func AddressTargets(addrs []string) []Target {
	out := make([]Target, len(addrs))
	for i, a := range addrs {
		out[i] = Target{Label: a, Address: a}
	}
	return out
}

type target struct {
	label string
	addr  prefix.Address
}

// Resolver applies a dump line stream to a classification table for a fixed
// set of targets. It keeps the previously accepted prefix for deduplication.
type Resolver struct {
	table            *classify.Table
	targets          []target
	progressInterval int64
	logger           *zap.Logger

	lastPrefix string
	stats      Stats
}

// NewResolver seeds every valid target into table as unknown. Targets whose
// address fails to parse are logged and left out.
func NewResolver(table *classify.Table, targets []Target, progressInterval int, logger *zap.Logger) *Resolver {
	r := &Resolver{
		table:            table,
		progressInterval: int64(progressInterval),
		logger:           logger,
	}

	for _, t := range targets {
		if _, dup := table.Get(t.Label); dup {
			continue
		}
		a, err := prefix.ParseAddress(t.Address)
		if err != nil {
			metrics.ParseErrorsTotal.WithLabelValues("address", "malformed").Inc()
			logger.Error("skipping unparseable address", zap.String("address", t.Address), zap.Error(err))
			continue
		}
		r.targets = append(r.targets, target{label: t.Label, addr: a})
		table.Classify(t.Label, classify.Unknown)
	}
	return r
}

// Targets returns the labels being resolved, in argument order.
func (r *Resolver) Targets() []string {
	out := make([]string, len(r.targets))
	for i, t := range r.targets {
		out[i] = t.label
	}
	return out
}

// Stats returns the counters accumulated so far.
func (r *Resolver) Stats() Stats { return r.stats }

// Run consumes src until it is exhausted or ctx is done. Lines that cannot
// be parsed are skipped; the table keeps whatever was classified before a
// read error.
func (r *Resolver) Run(ctx context.Context, src LineSource) (Stats, error) {
	for src.Scan() {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("dump processing interrupted", zap.Int64("lines", r.stats.Lines), zap.Error(err))
			return r.stats, nil
		}
		r.ProcessLine(src.Text())

		if r.progressInterval > 0 && r.stats.Lines%r.progressInterval == 0 {
			r.logger.Info("dump progress",
				zap.Int64("lines", r.stats.Lines),
				zap.Int64("accepted", r.stats.Accepted),
				zap.Int64("matches", r.stats.Matches),
			)
		}
	}
	if err := src.Err(); err != nil {
		return r.stats, fmt.Errorf("reading dump: %w", err)
	}
	return r.stats, nil
}

// ProcessLine applies one dump line to the table.
func (r *Resolver) ProcessLine(line string) {
	r.stats.Lines++

	rec, err := ParseLine(line)
	if err != nil {
		r.stats.Malformed++
		metrics.DumpLinesTotal.WithLabelValues("malformed").Inc()
		r.logger.Debug("skipping malformed dump line", zap.Int64("line", r.stats.Lines), zap.Error(err))
		return
	}

	// Later peers' paths to the same prefix are ignored.
	if rec.Prefix == r.lastPrefix {
		r.stats.Duplicates++
		metrics.DumpLinesTotal.WithLabelValues("duplicate").Inc()
		return
	}
	r.lastPrefix = rec.Prefix

	if rec.OriginAS == "" {
		r.stats.NoPath++
		metrics.DumpLinesTotal.WithLabelValues("no_path").Inc()
		return
	}

	pfx, err := prefix.ParsePrefix(rec.Prefix)
	if err != nil {
		r.stats.PrefixErrors++
		metrics.ParseErrorsTotal.WithLabelValues("prefix", "malformed").Inc()
		r.logger.Debug("skipping unparseable prefix", zap.String("prefix", rec.Prefix), zap.Error(err))
		return
	}

	r.stats.Accepted++
	metrics.DumpLinesTotal.WithLabelValues("accepted").Inc()
	r.classify(rec, pfx)
}

func (r *Resolver) classify(rec Record, pfx prefix.Prefix) {
	// The first-octet shortcut is only exact when the prefix spans the
	// whole first octet.
	first := pfx.Base().Octets()[0]
	filter := pfx.Len() >= 8

	for _, t := range r.targets {
		if filter && t.addr.Octets()[0] != first {
			continue
		}
		if pfx.Contains(t.addr) {
			r.stats.Matches++
			metrics.ClassificationsTotal.WithLabelValues("match").Inc()
			if ce := r.logger.Check(zap.DebugLevel, "address matched prefix"); ce != nil {
				ce.Write(
					zap.String("address", t.label),
					zap.String("prefix", rec.Prefix),
					zap.String("origin_as", rec.OriginAS),
					zap.String("address_bits", t.addr.Bits()),
					zap.String("prefix_bits", pfx.Bits()),
				)
			}
			r.table.Classify(t.label, rec.OriginAS)
			continue
		}
		metrics.ClassificationsTotal.WithLabelValues("no_match").Inc()
		r.table.Classify(t.label, classify.Unknown)
	}
}
