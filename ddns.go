package ddns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// New constructs a Client which keeps the A record name in zoneID pointed at the public address.
//
// A RecordStore is required (use UsingCloudflare or UsingRecordStore).
// Without UsingResolver the public address is looked up from DefaultLookupURL.
func New(name, zoneID string, options ...clientOption) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ConfigError{Setting: "record name", Reason: "cannot be empty"}
	}
	if !strings.Contains(name, ".") {
		return nil, &ConfigError{Setting: "record name", Reason: "must have at least one dot"}
	}
	if zoneID == "" {
		return nil, &ConfigError{Setting: "zone id", Reason: "cannot be empty"}
	}

	c := &Client{
		name:         name,
		zoneID:       zoneID,
		freshAddress: true,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ddns.New: option %d returned an error: %w", i, err)
		}
	}

	if c.store == nil {
		return nil, errors.New("ddns.New: no DNS provider was registered - use ddns.UsingCloudflare or similar")
	}
	if c.resolver == nil {
		r, err := WebResolver(DefaultLookupURL)
		if err != nil {
			return nil, fmt.Errorf("ddns.New: %w", err)
		}
		c.resolver = r
	}
	if c.logger == nil {
		c.logger = discard
	}

	// dependencies may have been registered after WithLogger or UsingHTTPClient
	c.propagate()
	return c, nil
}

type clientOption func(*Client) error

// UsingCloudflare stores the record in Cloudflare using an API token scoped to the zone.
func UsingCloudflare(token string) clientOption {
	return func(c *Client) error {
		cf, err := newCloudflareStore(token)
		if err != nil {
			return &ConfigError{Setting: "API token", Reason: "cannot be empty"}
		}
		c.store = cf
		return nil
	}
}

// UsingAPIURL points the Cloudflare store at a different API base URL.
// It must come after UsingCloudflare.
func UsingAPIURL(u string) clientOption {
	return func(c *Client) error {
		cf, ok := c.store.(*cloudflareStore)
		if !ok {
			return errors.New("ddns.UsingAPIURL: the record store is not cloudflare")
		}
		if u != "" {
			cf.baseURL = u
		}
		return nil
	}
}

func UsingRecordStore(store RecordStore) clientOption {
	return func(c *Client) error {
		if store == nil {
			return errors.New("record store cannot be nil")
		}
		c.store = store
		return nil
	}
}

// UsingResolver sets the Resolver. A nil resolver selects the default web lookup.
func UsingResolver(resolver Resolver) clientOption {
	return func(c *Client) error {
		c.resolver = resolver
		return nil
	}
}

func UsingWebResolver(serviceURL ...string) clientOption {
	return func(c *Client) (err error) {
		c.resolver, err = WebResolver(serviceURL...)
		return err
	}
}

// UsingHTTPClient sets the http.Client for the record store and web resolver.
func UsingHTTPClient(httpclient *http.Client) clientOption {
	return func(c *Client) error {
		c.httpClient = httpclient
		return nil
	}
}

// WithLogger sets the logger handed to the client and its dependencies.
func WithLogger(logger logrus.FieldLogger) clientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithFreshAddress controls whether the public address is resolved a second time right before writing.
// It is enabled by default so that the written value is as fresh as possible;
// disabling it saves one lookup per update.
func WithFreshAddress(enabled bool) clientOption {
	return func(c *Client) error {
		c.freshAddress = enabled
		return nil
	}
}

func (c *Client) propagate() {
	type setLogger interface {
		SetLogger(logrus.FieldLogger)
	}
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}

	for _, dep := range []any{c.store, c.resolver} {
		if l, ok := dep.(setLogger); ok {
			l.SetLogger(c.logger)
		}
		if hc, ok := dep.(setHTTPClient); ok && c.httpClient != nil {
			hc.SetHTTPClient(c.httpClient)
		}
	}
}

// Client reconciles one A record with the public address.
type Client struct {
	store        RecordStore
	resolver     Resolver
	logger       logrus.FieldLogger
	httpClient   *http.Client
	name         string
	zoneID       string
	freshAddress bool
}

// Reconcile runs a single pass:
// read the record, resolve the public address, and write the address only if it differs.
//
// The returned error is nil exactly when the outcome is NoChangeNeeded or Updated.
// A pass aborts on the first failure and never writes after a failed lookup.
func (c *Client) Reconcile(ctx context.Context) (Outcome, error) {
	log := c.logger.WithFields(logrus.Fields{"run_id": uuid.NewString(), "record": c.name})
	ctx = contextWithLogger(ctx, log)

	outcome, err := c.reconcile(ctx, log)
	// failures are logged where they happen; this entry only adds the outcome
	entry := log.WithField("outcome", outcome.String())
	if err != nil {
		entry.Debugf("reconciliation aborted: %s", err)
	} else {
		entry.Debug("reconciliation finished")
	}
	return outcome, err
}

func (c *Client) reconcile(ctx context.Context, log logrus.FieldLogger) (Outcome, error) {
	record, err := c.store.ReadRecord(ctx, c.zoneID, c.name)
	if err != nil {
		return lookupOutcome(err), fmt.Errorf("error reading %s: %w", c.name, err)
	}

	addr, err := c.resolve(ctx)
	if err != nil {
		return ResolveFailed, err
	}

	if sameAddress(addr, record.Content) {
		log.Info("DNS record up to date")
		return NoChangeNeeded, nil
	}
	log.Infof("Updating DNS record for %s to %s", c.name, addr)

	id, err := c.store.FindRecordID(ctx, c.zoneID, c.name)
	if err != nil {
		return lookupOutcome(err), fmt.Errorf("error looking up record id for %s: %w", c.name, err)
	}

	if c.freshAddress {
		if addr, err = c.resolve(ctx); err != nil {
			return ResolveFailed, err
		}
		if sameAddress(addr, record.Content) {
			log.Info("public address changed back to the published value; DNS record up to date")
			return NoChangeNeeded, nil
		}
	}

	if err := c.store.WriteRecord(ctx, c.zoneID, id, c.name, addr.String()); err != nil {
		return UpdateFailed, fmt.Errorf("error updating %s to %s: %w", c.name, addr, err)
	}
	return Updated, nil
}

// resolve never hands back an address that failed validation,
// even when a custom Resolver returns a zero value without an error.
func (c *Client) resolve(ctx context.Context) (netip.Addr, error) {
	addr, err := c.resolver.Resolve(ctx)
	if err != nil {
		var rerr *ResolveError
		if !errors.As(err, &rerr) {
			err = &ResolveError{Err: err}
		}
		return netip.Addr{}, err
	}
	if !addr.Is4() {
		err := &ResolveError{Err: fmt.Errorf("resolver returned %q, which is not an IPv4 address", addr)}
		loggerFrom(ctx, c.logger).Error(err)
		return netip.Addr{}, err
	}
	return addr, nil
}

func sameAddress(addr netip.Addr, content string) bool {
	return strings.TrimSpace(addr.String()) == strings.TrimSpace(content)
}

func lookupOutcome(err error) Outcome {
	if errors.Is(err, ErrNotFound) {
		return RecordNotFound
	}
	return LookupFailed
}
