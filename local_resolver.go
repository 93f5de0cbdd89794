package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first IPv4 address reported by the given interfaces.
// If no interfaces are provided then all interfaces will be used.
// Loopback and link-local addresses are always skipped.
//
// This is only useful on hosts which hold their public address directly,
// e.g. a router with a PPPoE uplink.
func InterfaceResolver(iface ...string) Resolver {
	return interfaceResolver{ifaces: iface}
}

type interfaceResolver struct {
	ifaces []string
}

func (r interfaceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	log := loggerFrom(ctx, discard)
	ip, err := r.resolve()
	if err != nil {
		log.Errorf("Error reading public IP from interfaces: %s", err)
		return ip, err
	}
	log.Infof("Current public IP read from interfaces: %s", ip)
	return ip, nil
}

func (r interfaceResolver) resolve() (netip.Addr, error) {
	var errs []error
	if len(r.ifaces) == 0 {
		adds, err := net.InterfaceAddrs()
		if err != nil {
			return netip.Addr{}, &ResolveError{Source: "local interfaces", Err: fmt.Errorf("error getting addresses for interface: %w", err)}
		}
		if ip, ok := firstIPv4(adds, &errs); ok {
			return ip, nil
		}
		return netip.Addr{}, &ResolveError{Source: "local interfaces", Err: noIPv4(errs)}
	}

	for _, ifs := range r.ifaces {
		iface, err := net.InterfaceByName(ifs)
		if err != nil {
			errs = append(errs, fmt.Errorf("error getting interface %s by name: %w", ifs, err))
			continue
		}
		a, err := iface.Addrs()
		if err != nil {
			errs = append(errs, fmt.Errorf("error looking up addresses for interface %s: %w", ifs, err))
			continue
		}
		if ip, ok := firstIPv4(a, &errs); ok {
			return ip, nil
		}
	}
	return netip.Addr{}, &ResolveError{Source: fmt.Sprintf("interfaces %v", r.ifaces), Err: noIPv4(errs)}
}

// addr: ip+net:192.168.86.253/24
// addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
func firstIPv4(addrs []net.Addr, errs *[]error) (netip.Addr, bool) {
	for _, addr := range addrs {
		p, err := netip.ParsePrefix(addr.String())
		if err != nil {
			*errs = append(*errs, fmt.Errorf("error parsing local ip %s: %s", addr.String(), err))
			continue
		}
		ip := p.Addr().Unmap()
		if !ip.Is4() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip, true
	}
	return netip.Addr{}, false
}

func noIPv4(errs []error) error {
	return errors.Join(append([]error{errors.New("no usable IPv4 address found")}, errs...)...)
}
