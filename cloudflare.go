package ddns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultAPIURL is the base URL of the Cloudflare v4 API.
const DefaultAPIURL = "https://api.cloudflare.com/client/v4"

const (
	requestTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

func newCloudflareStore(token string) (*cloudflareStore, error) {
	if token == "" {
		return nil, errors.New("API token cannot be empty")
	}
	return &cloudflareStore{
		token:   token,
		baseURL: DefaultAPIURL,
		logger:  discard,
	}, nil
}

// cloudflareStore implements ddns.RecordStore against the Cloudflare v4 API.
//
// It should be constructed using UsingCloudflare.
type cloudflareStore struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

func (cf *cloudflareStore) SetLogger(l logrus.FieldLogger) { cf.logger = l }
func (cf *cloudflareStore) SetHTTPClient(hc *http.Client) { cf.httpClient = hc }

// apiResponse is the envelope shared by every Cloudflare v4 response.
type apiResponse struct {
	Success  bool            `json:"success"`
	Errors   []ProviderError `json:"errors"`
	Messages []ProviderError `json:"messages"`
	Result   json.RawMessage `json:"result"`
}

// APIError is returned when the API answered with success=false.
type APIError struct {
	StatusCode int
	Errors     []ProviderError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudflare API error (HTTP %d): %s", e.StatusCode, formatErrors(e.Errors))
}

// DecodeError is returned when a response body does not match the expected schema.
type DecodeError struct {
	StatusCode int
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to parse response (HTTP %d): %s", e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (cf *cloudflareStore) ReadRecord(ctx context.Context, zoneID, name string) (Record, error) {
	log := loggerFrom(ctx, cf.logger).WithFields(logrus.Fields{"zone": zoneID, "record": name})

	records, err := cf.listRecords(ctx, zoneID, name, recordTypeA)
	if err != nil {
		log.Errorf("Error fetching DNS records: %s", err)
		return Record{}, &LookupError{Kind: LookupTransport, Name: name, Err: err}
	}
	if len(records) == 0 {
		log.Warnf("No A record found for %s.", name)
		return Record{}, &LookupError{Kind: LookupNotFound, Name: name, Err: ErrNotFound}
	}
	if len(records) > 1 {
		log.Debugf("found %d A records; using the first", len(records))
	}
	r := records[0]
	log.Infof("DNS record fetched successfully: %s", r.Content)
	return r, nil
}

func (cf *cloudflareStore) FindRecordID(ctx context.Context, zoneID, name string) (RecordID, error) {
	log := loggerFrom(ctx, cf.logger).WithFields(logrus.Fields{"zone": zoneID, "record": name})

	records, err := cf.listRecords(ctx, zoneID, name, "")
	if err != nil {
		log.Errorf("Failed to fetch DNS records: %s", err)
		return "", &LookupError{Kind: LookupTransport, Name: name, Err: err}
	}
	if len(records) == 0 {
		log.Warnf("No DNS record found for %s.", name)
		return "", &LookupError{Kind: LookupNotFound, Name: name, Err: ErrNotFound}
	}
	log.Debugf("using record id %s", records[0].ID)
	return records[0].ID, nil
}

func (cf *cloudflareStore) WriteRecord(ctx context.Context, zoneID string, id RecordID, name, content string) error {
	log := loggerFrom(ctx, cf.logger).WithFields(logrus.Fields{"zone": zoneID, "record": name, "record_id": id})

	payload := Record{
		Type:    recordTypeA,
		Name:    name,
		Content: content,
		TTL:     TTLAuto,
		Proxied: false,
	}
	path := "/zones/" + url.PathEscape(zoneID) + "/dns_records/" + url.PathEscape(string(id))
	resp, status, err := cf.do(ctx, http.MethodPut, path, nil, writeBody(payload))
	if err != nil {
		log.Errorf("Failed to update DNS record: %s", err)
		return &WriteError{Kind: WriteTransport, ID: id, Err: err}
	}
	if !resp.Success {
		werr := &WriteError{Kind: WriteRejected, ID: id, Errors: resp.Errors, Err: &APIError{StatusCode: status, Errors: resp.Errors}}
		log.WithField("errors", formatErrors(resp.Errors)).Errorf("Failed to update DNS record: %s", formatErrors(resp.Errors))
		return werr
	}
	log.Infof("DNS record %s updated successfully.", name)
	return nil
}

// writeBody drops the id from the PUT payload; the id travels in the path.
func writeBody(r Record) any {
	return struct {
		Type    string `json:"type"`
		Name    string `json:"name"`
		Content string `json:"content"`
		TTL     int    `json:"ttl"`
		Proxied bool   `json:"proxied"`
	}{r.Type, r.Name, r.Content, r.TTL, r.Proxied}
}

func (cf *cloudflareStore) listRecords(ctx context.Context, zoneID, name, recordType string) ([]Record, error) {
	q := url.Values{}
	q.Set("name", name)
	if recordType != "" {
		q.Set("type", recordType)
	}
	resp, status, err := cf.do(ctx, http.MethodGet, "/zones/"+url.PathEscape(zoneID)+"/dns_records", q, nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{StatusCode: status, Errors: resp.Errors}
	}

	var records []Record
	if err := json.Unmarshal(resp.Result, &records); err != nil {
		return nil, &DecodeError{StatusCode: status, Err: fmt.Errorf("failed to parse result: %w", err)}
	}
	return records, nil
}

// do sends one API request and decodes the envelope.
// A decoded envelope is returned even when success=false;
// the error is only set when no envelope could be obtained.
func (cf *cloudflareStore) do(ctx context.Context, method, path string, query url.Values, body any) (*apiResponse, int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	u := strings.TrimSuffix(cf.baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal payload: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cf.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpclient := cf.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	loggerFrom(ctx, cf.logger).Debugf("%s %s", method, u)
	resp, err := httpclient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, resp.StatusCode, &DecodeError{StatusCode: resp.StatusCode, Err: err}
	}
	if env.Success && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, resp.StatusCode, fmt.Errorf("http request returned %s", resp.Status)
	}
	return &env, resp.StatusCode, nil
}
