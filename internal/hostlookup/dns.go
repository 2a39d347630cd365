package hostlookup

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/route-beacon/as-resolver/internal/config"
	"go.uber.org/zap"
)

// DNSResolver sends A queries to the configured nameservers in order,
// applying the resolv.conf search list. Truncated UDP answers are retried
// over TCP.
type DNSResolver struct {
	conf    *dns.ClientConfig
	servers []string
	udp     *dns.Client
	tcp     *dns.Client
	logger  *zap.Logger
}

func NewDNSResolver(cfg config.LookupConfig, logger *zap.Logger) (*DNSResolver, error) {
	var (
		conf    *dns.ClientConfig
		servers []string
	)
	if len(cfg.Servers) > 0 {
		conf = &dns.ClientConfig{Ndots: 1, Port: "53"}
		for _, s := range cfg.Servers {
			servers = append(servers, withPort(s, conf.Port))
		}
	} else {
		c, err := dns.ClientConfigFromFile(cfg.ResolvConf)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfg.ResolvConf, err)
		}
		conf = c
		for _, s := range c.Servers {
			servers = append(servers, net.JoinHostPort(s, c.Port))
		}
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no nameservers configured")
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	return &DNSResolver{
		conf:    conf,
		servers: servers,
		udp:     &dns.Client{Net: "udp", Timeout: timeout},
		tcp:     &dns.Client{Net: "tcp", Timeout: timeout},
		logger:  logger,
	}, nil
}

func withPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, port)
}

func (d *DNSResolver) LookupIPv4(ctx context.Context, host string) ([]string, error) {
	var lastErr error
	for _, name := range d.conf.NameList(host) {
		addrs, err := d.queryA(ctx, name)
		if len(addrs) > 0 {
			return addrs, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("looking up %s: %w", host, lastErr)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoAddress, host)
}

// queryA asks each server in turn until one returns a usable answer for
// name. NXDOMAIN and empty answers return no addresses and no error.
func (d *DNSResolver) queryA(ctx context.Context, name string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeA)

	var lastErr error
	for _, server := range d.servers {
		resp, _, err := d.udp.ExchangeContext(ctx, m, server)
		if err == nil && resp.Truncated {
			resp, _, err = d.tcp.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			d.logger.Debug("nameserver query failed",
				zap.String("server", server),
				zap.String("name", name),
				zap.Error(err),
			)
			lastErr = err
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
			return aRecords(resp), nil
		case dns.RcodeNameError:
			return nil, nil
		default:
			lastErr = fmt.Errorf("%s from %s", dns.RcodeToString[resp.Rcode], server)
		}
	}
	return nil, lastErr
}

// aRecords returns the distinct A record addresses of an answer section,
// skipping CNAMEs and other types.
func aRecords(resp *dns.Msg) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		s := a.A.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
