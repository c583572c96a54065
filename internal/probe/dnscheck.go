package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

const (
	DNSResolves     = "RESOLVES"
	DNSNXDomain     = "NXDOMAIN"
	DNSNoARecord    = "NO_A_RECORD"
	DNSServfail     = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName  = "INVALID_NAME"
	DNSLocalAddress = "LOCAL_ADDRESS"
)

type DNSStatus struct {
	Domain        string
	IPs           []net.IP
	CNAME         string
	Nameservers   []string
	Class         string
	ResolverError string
}

// DNSDiagnoser explains transport failures by classifying the target's DNS.
type DNSDiagnoser struct {
	Resolver *net.Resolver
	Timeout  time.Duration
}

func NewDNSDiagnoser(timeout time.Duration) *DNSDiagnoser {
	return &DNSDiagnoser{Resolver: net.DefaultResolver, Timeout: timeout}
}

func (d *DNSDiagnoser) Classify(ctx context.Context, host string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(host)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalidName
		return s
	}
	if net.ParseIP(s.Domain) != nil || s.Domain == "localhost" {
		s.Class = DNSLocalAddress
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	ips, err := d.Resolver.LookupIP(ctx, "ip", s.Domain)
	switch {
	case err == nil && len(ips) > 0:
		s.IPs = ips
		s.Class = DNSResolves
	case err != nil:
		s.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSServfail
			}
		}
	}

	if cname, err := d.Resolver.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}

	// A zone with nameservers but no address records is misconfigured, not missing.
	if ns, err := d.Resolver.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain {
			s.Class = DNSNoARecord
		}
	}

	if s.Class == "" {
		switch {
		case len(s.Nameservers) > 0:
			s.Class = DNSNoARecord
		case s.ResolverError != "":
			s.Class = DNSServfail
		default:
			s.Class = DNSNXDomain
		}
	}
	return s
}
