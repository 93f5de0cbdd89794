package ddns

import (
	"context"
	"fmt"
	"net/netip"
)

// FromString constructs a resolver that always returns the IPv4 address in addr.
func FromString(addr string) (Resolver, error) {
	ip, err := parseIPv4(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse IP: %w", err)
	}
	return stringResolver(ip), nil
}

type stringResolver netip.Addr

func (s stringResolver) Resolve(context.Context) (netip.Addr, error) {
	return netip.Addr(s), nil
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(context.Context) (netip.Addr, error)

func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) {
	return f(ctx)
}
