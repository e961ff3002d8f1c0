package netscan_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/netsweep/network-survey-agent/internal/models"
	"github.com/netsweep/network-survey-agent/pkg/netscan"
)

type stubResolver struct {
	names    map[string][]string
	err      error
	attempts int
}

func (r *stubResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	r.attempts++
	if r.err != nil {
		return nil, r.err
	}
	return r.names[addr], nil
}

// stubDialer answers successfully for the configured ports and refuses the
// rest.
type stubDialer struct {
	openPorts map[int]bool
}

func (d *stubDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(portStr)
	if !d.openPorts[port] {
		return nil, errors.New("connection refused")
	}
	server, client := net.Pipe()
	go server.Close()
	return client, nil
}

var _ = Describe("Prober", func() {
	var addr netip.Addr

	BeforeEach(func() {
		addr = netip.MustParseAddr("10.0.0.7")
	})

	It("should report hostname, open ports and latency for a reachable host", func() {
		prober := netscan.NewProber([]int{22, 80}, time.Second,
			netscan.WithResolver(&stubResolver{names: map[string][]string{
				"10.0.0.7": {"build-server.lan."},
			}}),
			netscan.WithDialer(&stubDialer{openPorts: map[int]bool{22: true, 80: true}}),
		)

		host, err := prober.Lookup(context.Background(), addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(host.Address).To(Equal("10.0.0.7"))
		Expect(host.Hostname).To(Equal("build-server.lan."))
		Expect(host.Reachable).To(BeTrue())
		Expect(host.OpenPorts).To(Equal([]int{22, 80}))
		Expect(host.OSClass).To(Equal(models.OSClassUnix))
		Expect(host.Latency).To(BeNumerically(">=", 0))
	})

	It("should treat a missing PTR record as an anonymous host", func() {
		prober := netscan.NewProber([]int{445}, time.Second,
			netscan.WithResolver(&stubResolver{err: &net.DNSError{IsNotFound: true}}),
			netscan.WithDialer(&stubDialer{openPorts: map[int]bool{445: true}}),
		)

		host, err := prober.Lookup(context.Background(), addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(host.Hostname).To(BeEmpty())
		Expect(host.Reachable).To(BeTrue())
		Expect(host.OSClass).To(Equal(models.OSClassWindows))
	})

	It("should mark a silent host unreachable without an error", func() {
		prober := netscan.NewProber([]int{22, 80}, 50*time.Millisecond,
			netscan.WithResolver(&stubResolver{err: &net.DNSError{IsNotFound: true}}),
			netscan.WithDialer(&stubDialer{}),
		)

		host, err := prober.Lookup(context.Background(), addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(host.Reachable).To(BeFalse())
		Expect(host.OpenPorts).To(BeEmpty())
		Expect(host.OSClass).To(Equal(models.OSClassUnknown))
	})

	It("should retry transient resolver failures a bounded number of times", func() {
		resolver := &stubResolver{err: &net.DNSError{IsTemporary: true}}
		prober := netscan.NewProber([]int{22}, 50*time.Millisecond,
			netscan.WithResolver(resolver),
			netscan.WithDialer(&stubDialer{}),
		)

		_, err := prober.Lookup(context.Background(), addr)
		Expect(err).To(HaveOccurred())
		Expect(resolver.attempts).To(Equal(3))
	})

	It("should return the context error when canceled", func() {
		prober := netscan.NewProber([]int{22}, time.Second,
			netscan.WithResolver(&stubResolver{}),
			netscan.WithDialer(&stubDialer{}),
		)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := prober.Lookup(ctx, addr)
		Expect(err).To(MatchError(context.Canceled))
	})

	Describe("Validate", func() {
		It("should reject an empty port set", func() {
			Expect(netscan.NewProber(nil, time.Second).Validate()).To(HaveOccurred())
		})

		It("should reject a non-positive timeout", func() {
			Expect(netscan.NewProber([]int{22}, 0).Validate()).To(HaveOccurred())
		})

		It("should accept a sane configuration", func() {
			Expect(netscan.NewProber([]int{22}, time.Second).Validate()).NotTo(HaveOccurred())
		})
	})
})

var _ = Describe("Classify", func() {
	It("should classify Windows port profiles first", func() {
		Expect(netscan.Classify([]int{22, 445})).To(Equal(models.OSClassWindows))
		Expect(netscan.Classify([]int{3389})).To(Equal(models.OSClassWindows))
	})

	It("should classify SSH-only hosts as unix", func() {
		Expect(netscan.Classify([]int{22, 80})).To(Equal(models.OSClassUnix))
	})

	It("should classify telnet-only hosts as network gear", func() {
		Expect(netscan.Classify([]int{23})).To(Equal(models.OSClassNetwork))
	})

	It("should fall back to unknown", func() {
		Expect(netscan.Classify([]int{80, 443})).To(Equal(models.OSClassUnknown))
		Expect(netscan.Classify(nil)).To(Equal(models.OSClassUnknown))
	})
})
