package session

import (
	"context"
	"net"
	"strings"
	"time"
)

// HostResolver performs reverse lookups. *net.Resolver satisfies it.
type HostResolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// DefaultDNSTimeout bounds reverse lookups during login.
const DefaultDNSTimeout = 2 * time.Second

// hostnameFor returns the reverse-resolved name of remoteAddr, or the bare
// address when the lookup fails or runs out of time.
func hostnameFor(ctx context.Context, r HostResolver, remoteAddr string, timeout time.Duration) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if host == "" || r == nil {
		return host
	}
	if timeout <= 0 {
		timeout = DefaultDNSTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	names, err := r.LookupAddr(ctx, host)
	if err != nil || len(names) == 0 {
		return host
	}
	name := strings.TrimSuffix(names[0], ".")
	if name == "" {
		return host
	}
	return name
}
