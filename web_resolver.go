package ddns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLookupURL is the lookup service used when none is configured.
const DefaultLookupURL = "https://ipinfo.io/ip"

const lookupTimeout = 10 * time.Second

// maxLookupSize caps how much of a lookup response is read.
const maxLookupSize = 1 << 10

// WebResolver constructs a resolver which uses external web services to look up the public IPv4 address.
//
// Each serviceURL must speak http and return status "200 OK",
// with a valid IPv4 address as the first line of the response body.
// All other responses, including IPv6 addresses, are considered an error.
//
// If only one serviceURL is given,
// then the resolver will simply return the response.
// If multiple are given,
// then the resolver will request from up to three of them and only return successfully if the first two non-error responses agreed on the IP.
// This approach is taken due to the sensitive nature of having control over DNS records.
//
// Resolve never retries; a failed lookup is reported to the caller.
func WebResolver(serviceURL ...string) (Resolver, error) {
	var URLs []*url.URL
	for _, u := range serviceURL {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL: %w", err)
		}
		if pu.Scheme != "http" && pu.Scheme != "https" {
			return nil, fmt.Errorf("lookup service %q must use http or https", u)
		}
		URLs = append(URLs, pu)
	}
	return &webResolver{serviceURLs: URLs, logger: discard}, nil
}

type webResolver struct {
	httpClient  *http.Client
	serviceURLs []*url.URL
	logger      logrus.FieldLogger
}

func (wr *webResolver) SetLogger(l logrus.FieldLogger) { wr.logger = l }
func (wr *webResolver) SetHTTPClient(hc *http.Client) { wr.httpClient = hc }

// Resolve implements ddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	log := loggerFrom(ctx, wr.logger)
	switch len(wr.serviceURLs) {
	case 0:
		return netip.Addr{}, &ResolveError{Err: errors.New("no external IP lookup services were provided")}
	case 1:
		u := wr.serviceURLs[0]
		ip, err := wr.lookup(ctx, u)
		if err != nil {
			log.WithField("service", u.String()).Errorf("Error fetching public IP: %s", err)
			return netip.Addr{}, &ResolveError{Source: u.String(), Err: err}
		}
		log.WithField("service", u.String()).Infof("Current public IP fetched successfully: %s", ip)
		return ip, nil
	}

	ip, err := wr.consensus(ctx)
	if err != nil {
		log.Errorf("Error fetching public IP: %s", err)
		return netip.Addr{}, &ResolveError{Source: fmt.Sprintf("%d lookup services", len(wr.serviceURLs)), Err: err}
	}
	log.Infof("Current public IP fetched successfully: %s", ip)
	return ip, nil
}

// consensus calls out to up to three of the lookup urls.
// It only returns a nil error if the first two non-error responses had matching IPs.
func (wr *webResolver) consensus(ctx context.Context) (netip.Addr, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		addr netip.Addr
		err  error
	}

	useCount := min(3, len(wr.serviceURLs))
	results := make(chan result, useCount)

	var wg sync.WaitGroup
	wg.Add(useCount)
	for _, u := range wr.serviceURLs[:useCount] {
		u := u
		go func() {
			defer wg.Done()
			r := result{}
			r.addr, r.err = wr.lookup(ctx, u)
			if r.err != nil {
				r.err = fmt.Errorf("%s: %w", u, r.err)
			}
			results <- r
		}()
	}
	go func() { wg.Wait(); close(results) }()

	var errs []error
	var ip netip.Addr
	for r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if !ip.IsValid() {
			ip = r.addr
			continue
		}
		if ip == r.addr {
			return ip, nil
		}
		return netip.Addr{}, fmt.Errorf("IP lookup services did not agree on our IP: %s != %s", ip, r.addr)
	}
	return netip.Addr{}, fmt.Errorf("not enough lookup services responded without errors: %w", errors.Join(errs...))
}

func (wr *webResolver) lookup(ctx context.Context, url *url.URL) (netip.Addr, error) {
	// bounds every lookup even when the caller supplied context.Background
	// and http.DefaultClient (which has no timeout).
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	scanner := bufio.NewReader(io.LimitReader(resp.Body, maxLookupSize))
	ipstring, _ := scanner.ReadString('\n')
	return parseIPv4(ipstring)
}

func parseIPv4(s string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address: %w", err)
	}
	if !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	return ip, nil
}
