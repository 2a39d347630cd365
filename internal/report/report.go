// Package report joins the classification table with an AS registry and
// writes the final address report.
package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/route-beacon/as-resolver/internal/classify"
	"github.com/route-beacon/as-resolver/internal/metrics"
	"github.com/route-beacon/as-resolver/internal/registry"
	"go.uber.org/zap"
)

// Match is an address whose origin AS has a registry name.
type Match struct {
	Address string
	AS      string
	Name    string
}

// Result is the outcome of a cross-reference, in report order.
type Result struct {
	// Named holds one Match per registry entry and address, in registry order
	// and then table insertion order.
	Named []Match
	// Unnamed holds resolved entries whose AS had no registry name,
	// including AS_SET origins.
	Unnamed []classify.Entry
	Unknown []string
}

// CrossReference scans reg once and tags every resolved address with the
// name of its AS. The registry is not read when nothing resolved. On a
// registry error the partial result is still returned, with every address
// not yet named reported as unnamed.
func CrossReference(ctx context.Context, reg registry.Registry, table *classify.Table, logger *zap.Logger) (Result, error) {
	res := Result{Unknown: Unknown(table)}
	entries := table.Entries()

	byAS := make(map[string][]string)
	for _, e := range entries {
		if e.Known() {
			byAS[e.Value] = append(byAS[e.Value], e.Address)
		}
	}

	var regErr error
	named := make(map[string]bool)
	if len(byAS) == 0 {
		logger.Info("no address resolved, registry not read")
	} else {
		start := time.Now()
		regErr = reg.Each(ctx, func(re registry.Entry) error {
			as := re.ASString()
			addrs, ok := byAS[as]
			if !ok {
				return nil
			}
			named[as] = true
			for _, addr := range addrs {
				res.Named = append(res.Named, Match{Address: addr, AS: as, Name: re.Name})
			}
			return nil
		})
		metrics.RunDuration.WithLabelValues("registry").Observe(time.Since(start).Seconds())
	}

	for _, e := range entries {
		if e.Known() && !named[e.Value] {
			res.Unnamed = append(res.Unnamed, e)
		}
	}

	if regErr != nil {
		return res, fmt.Errorf("cross-referencing registry: %w", regErr)
	}
	return res, nil
}

// Unknown lists addresses still classified as unknown, in insertion order.
func Unknown(table *classify.Table) []string {
	var out []string
	for _, e := range table.Entries() {
		if !e.Known() {
			out = append(out, e.Address)
		}
	}
	return out
}

// Write prints named matches, then unnamed and unknown addresses, one per line:
//
//	<address> <AS> <name>
//	<address> <AS> -
//	<address> - unknown
func Write(w io.Writer, res Result) error {
	bw := bufio.NewWriter(w)
	for _, m := range res.Named {
		fmt.Fprintf(bw, "%s %s %s\n", m.Address, m.AS, m.Name)
	}
	for _, e := range res.Unnamed {
		fmt.Fprintf(bw, "%s %s -\n", e.Address, e.Value)
	}
	for _, addr := range res.Unknown {
		fmt.Fprintf(bw, "%s - %s\n", addr, classify.Unknown)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Observe records the final address states in the resolved-addresses gauge.
func Observe(res Result) {
	namedAddrs := make(map[string]struct{}, len(res.Named))
	for _, m := range res.Named {
		namedAddrs[m.Address] = struct{}{}
	}
	metrics.ResolvedAddresses.WithLabelValues("named").Set(float64(len(namedAddrs)))
	metrics.ResolvedAddresses.WithLabelValues("unnamed").Set(float64(len(res.Unnamed)))
	metrics.ResolvedAddresses.WithLabelValues("unknown").Set(float64(len(res.Unknown)))
}
