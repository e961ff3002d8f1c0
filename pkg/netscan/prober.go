package netscan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/netsweep/network-survey-agent/internal/models"
)

// Resolver is the reverse-DNS surface the prober needs from net.Resolver.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Dialer is the connect surface the prober needs from net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ProberOption customizes a Prober.
type ProberOption func(*Prober)

// WithResolver replaces the default resolver.
func WithResolver(r Resolver) ProberOption {
	return func(p *Prober) { p.resolver = r }
}

// WithDialer replaces the default dialer.
func WithDialer(d Dialer) ProberOption {
	return func(p *Prober) { p.dialer = d }
}

// Prober performs the remote host/OS lookup for one address: reverse DNS and
// a bounded TCP connect sweep over a small port set. Safe for concurrent use.
type Prober struct {
	resolver Resolver
	dialer   Dialer
	ports    []int
	timeout  time.Duration
}

// NewProber builds a prober over the given port set with a per-connection
// timeout.
func NewProber(ports []int, timeout time.Duration, opts ...ProberOption) *Prober {
	p := &Prober{
		resolver: &net.Resolver{},
		dialer:   &net.Dialer{Timeout: timeout},
		ports:    ports,
		timeout:  timeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks the prober's configuration; used as a worker init hook so
// a misconfigured survey fails at worker creation rather than per item.
func (p *Prober) Validate() error {
	if len(p.ports) == 0 {
		return errors.New("no probe ports configured")
	}
	if p.timeout <= 0 {
		return errors.New("probe timeout must be positive")
	}
	return nil
}

// Lookup surveys a single address. An unreachable host is not an error; the
// returned record simply has Reachable false. Errors are reserved for
// cancellation and configuration problems.
func (p *Prober) Lookup(ctx context.Context, addr netip.Addr) (models.Host, error) {
	host := models.Host{
		Address: addr.String(),
		OSClass: models.OSClassUnknown,
	}

	if err := ctx.Err(); err != nil {
		return host, err
	}

	hostname, err := p.reverseLookup(ctx, addr)
	if err != nil {
		return host, err
	}
	host.Hostname = hostname

	for _, port := range p.ports {
		if err := ctx.Err(); err != nil {
			return host, err
		}
		latency, open := p.probePort(ctx, addr, port)
		if !open {
			continue
		}
		host.OpenPorts = append(host.OpenPorts, port)
		if host.Latency == 0 || latency < host.Latency {
			host.Latency = latency
		}
	}

	host.Reachable = len(host.OpenPorts) > 0 || host.Hostname != ""
	host.OSClass = Classify(host.OpenPorts)
	return host, nil
}

// reverseLookup resolves the PTR record for an address with bounded retries.
// A missing PTR record is not an error.
func (p *Prober) reverseLookup(ctx context.Context, addr netip.Addr) (string, error) {
	names, err := backoff.Retry(ctx, func() ([]string, error) {
		names, err := p.resolver.LookupAddr(ctx, addr.String())
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				return nil, nil
			}
			return nil, err
		}
		return names, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		return "", fmt.Errorf("reverse lookup %s: %w", addr, err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

// probePort attempts one TCP connect and reports the dial latency on success.
func (p *Prober) probePort(ctx context.Context, addr netip.Addr, port int) (time.Duration, bool) {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	target := net.JoinHostPort(addr.String(), strconv.Itoa(port))
	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", target)
	if err != nil {
		return 0, false
	}
	latency := time.Since(start)
	conn.Close()
	return latency, true
}

// Classify derives a coarse OS class from an open-port profile.
func Classify(openPorts []int) models.OSClass {
	var hasSSH, hasTelnet bool
	for _, port := range openPorts {
		switch port {
		case 135, 139, 445, 3389:
			return models.OSClassWindows
		case 22:
			hasSSH = true
		case 23:
			hasTelnet = true
		}
	}
	if hasSSH {
		return models.OSClassUnix
	}
	if hasTelnet {
		return models.OSClassNetwork
	}
	return models.OSClassUnknown
}
