// Package hostlookup turns host name arguments into IPv4 targets before a
// dump is read.
package hostlookup

import (
	"context"
	"errors"

	"github.com/miekg/dns"
	"github.com/route-beacon/as-resolver/internal/metrics"
	"github.com/route-beacon/as-resolver/internal/rib"
	"go.uber.org/zap"
)

// ErrNoAddress is returned when a host exists but has no A record, or does
// not exist at all.
var ErrNoAddress = errors.New("no IPv4 address")

// Resolver looks up the IPv4 addresses of a host.
type Resolver interface {
	LookupIPv4(ctx context.Context, host string) ([]string, error)
}

// IsAddressLiteral reports whether arg is meant as a dotted-decimal address.
// Such arguments are never looked up, even when malformed.
func IsAddressLiteral(arg string) bool {
	if arg == "" {
		return false
	}
	for i := 0; i < len(arg); i++ {
		c := arg[i]
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// NeedsLookup reports whether any argument is a host name.
func NeedsLookup(args []string) bool {
	for _, a := range args {
		if !IsAddressLiteral(a) {
			return true
		}
	}
	return false
}

// Label is how a looked-up address appears in the report.
func Label(host, addr string) string {
	return host + "[" + addr + "]"
}

// Expand converts resolve arguments to targets in argument order. Address
// literals pass through unchanged. Every IPv4 address of a host becomes a
// target labelled host[address]. Hosts that fail to resolve are logged and
// left out. r may be nil when no lookup is possible.
func Expand(ctx context.Context, r Resolver, args []string, logger *zap.Logger) []rib.Target {
	out := make([]rib.Target, 0, len(args))
	for _, arg := range args {
		if IsAddressLiteral(arg) {
			out = append(out, rib.Target{Label: arg, Address: arg})
			continue
		}

		if _, ok := dns.IsDomainName(arg); !ok {
			metrics.ParseErrorsTotal.WithLabelValues("address", "malformed").Inc()
			logger.Error("skipping argument that is neither an address nor a host name", zap.String("argument", arg))
			continue
		}
		if r == nil {
			metrics.HostLookupsTotal.WithLabelValues("failed").Inc()
			logger.Error("host lookup unavailable, skipping host", zap.String("host", arg))
			continue
		}

		addrs, err := r.LookupIPv4(ctx, arg)
		if err != nil {
			metrics.HostLookupsTotal.WithLabelValues("failed").Inc()
			logger.Error("host lookup failed, skipping host", zap.String("host", arg), zap.Error(err))
			continue
		}

		metrics.HostLookupsTotal.WithLabelValues("resolved").Inc()
		logger.Info("host resolved", zap.String("host", arg), zap.Strings("addresses", addrs))
		for _, a := range addrs {
			out = append(out, rib.Target{Label: Label(arg, a), Address: a})
		}
	}
	return out
}
