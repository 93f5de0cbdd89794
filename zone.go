package ddns

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudflare/cloudflare-go"
)

// APIOption configures the Cloudflare SDK client used for zone discovery and token checks.
type APIOption func(*apiSettings)

type apiSettings struct {
	baseURL    string
	httpClient *http.Client
}

// APIURL overrides the Cloudflare API base URL.
func APIURL(u string) APIOption {
	return func(s *apiSettings) { s.baseURL = u }
}

// APIHTTPClient sets the http.Client used by the SDK.
func APIHTTPClient(hc *http.Client) APIOption {
	return func(s *apiSettings) { s.httpClient = hc }
}

func newAPI(token string, opts []APIOption) (*cloudflare.API, error) {
	var s apiSettings
	for _, opt := range opts {
		opt(&s)
	}
	// failures are reported to the caller, who decides when to try again
	cfopts := []cloudflare.Option{cloudflare.UsingRetryPolicy(0, 0, 0)}
	if s.baseURL != "" {
		cfopts = append(cfopts, cloudflare.BaseURL(s.baseURL))
	}
	if s.httpClient != nil {
		cfopts = append(cfopts, cloudflare.HTTPClient(s.httpClient))
	}
	api, err := cloudflare.NewWithAPIToken(token, cfopts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	return api, nil
}

// LookupZoneID finds the zone that manages recordName.
// When several zones match, the longest zone name wins.
//
// The error matches ErrNotFound only when the listing succeeded and no zone matched.
func LookupZoneID(ctx context.Context, token, recordName string, opts ...APIOption) (zid string, err error) {
	api, err := newAPI(token, opts)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	zones, err := api.ListZones(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing zones: %w", err)
	}

	recordName = strings.TrimSuffix(strings.ToLower(recordName), ".")
	max := 0
	for _, z := range zones {
		name := strings.ToLower(z.Name)
		if recordName != name && !strings.HasSuffix(recordName, "."+name) {
			continue
		}
		if len(name) > max {
			max, zid = len(name), z.ID
		}
	}
	if max == 0 {
		return "", fmt.Errorf("unable to find a zone matching \"%s\": %w", recordName, ErrNotFound)
	}
	return zid, nil
}

// VerifyToken checks that token is an active API token.
func VerifyToken(ctx context.Context, token string, opts ...APIOption) error {
	api, err := newAPI(token, opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	return nil
}
