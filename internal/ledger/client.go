// Package ledger talks to the wallet node that owns keys, composes units and
// watches payments on our behalf.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// API is the wallet-node surface the attestation engine consumes.
type API interface {
	IssueAddress(ctx context.Context) (string, error)
	ComposeAndBroadcast(ctx context.Context, payingAddress string, outputs []Output, messages []Message) (string, error)
	ReadBalance(ctx context.Context, address string) (int64, error)
	IsSyncing(ctx context.Context) (bool, error)
	UnitAuthors(ctx context.Context, unit string) ([]string, error)
	FundingAddress(ctx context.Context, address string) (string, error)
}

// Client is an HTTP client for the wallet node API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// Rate limiting
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

var _ API = (*Client)(nil)

// NewClient creates a new wallet node client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minDelay: 100 * time.Millisecond,
	}
}

func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastCall)
	if elapsed < c.minDelay {
		time.Sleep(c.minDelay - elapsed)
	}
	c.lastCall = time.Now()
}

// transientError marks a response worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	c.throttle()

	url := c.baseURL + path

	var jsonData []byte
	if body != nil {
		var err error
		jsonData, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	var data []byte
	op := func() error {
		var reqBody io.Reader
		if jsonData != nil {
			reqBody = bytes.NewReader(jsonData)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		req.Header.Set("Accept", "application/json")
		if jsonData != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &transientError{fmt.Errorf("do request: %w", err)}
		}
		defer resp.Body.Close()

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return &transientError{fmt.Errorf("read body: %w", err)}
		}

		if resp.StatusCode >= 500 {
			return &transientError{fmt.Errorf("node error %d: %s", resp.StatusCode, string(data))}
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("node error %d: %s", resp.StatusCode, string(data)))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return data, nil
}

// IssueAddress asks the node for a fresh receiving address.
func (c *Client) IssueAddress(ctx context.Context) (string, error) {
	data, err := c.doRequest(ctx, "POST", "/addresses", nil)
	if err != nil {
		return "", err
	}

	var resp issueAddressResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	return resp.Address, nil
}

// ComposeAndBroadcast asks the node to compose, sign and broadcast a unit.
// The returned unit identifier is final; the call is NOT idempotent.
func (c *Client) ComposeAndBroadcast(ctx context.Context, payingAddress string, outputs []Output, messages []Message) (string, error) {
	body := broadcastRequest{
		PayingAddress: payingAddress,
		Outputs:       outputs,
		Messages:      messages,
	}
	data, err := c.doRequest(ctx, "POST", "/units", body)
	if err != nil {
		return "", err
	}

	var resp broadcastResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	return resp.Unit, nil
}

// ReadBalance returns the spendable balance of an address.
func (c *Client) ReadBalance(ctx context.Context, address string) (int64, error) {
	data, err := c.doRequest(ctx, "GET", "/addresses/"+address+"/balance", nil)
	if err != nil {
		return 0, err
	}

	var resp balanceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("unmarshal: %w", err)
	}
	return resp.Balance, nil
}

// IsSyncing reports whether the node is still catching up; fund sweeping is
// gated on it.
func (c *Client) IsSyncing(ctx context.Context) (bool, error) {
	data, err := c.doRequest(ctx, "GET", "/sync", nil)
	if err != nil {
		return false, err
	}

	var resp syncStatusResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("unmarshal: %w", err)
	}
	return resp.IsSyncing, nil
}

// UnitAuthors returns the signing authors of a unit.
func (c *Client) UnitAuthors(ctx context.Context, unit string) ([]string, error) {
	data, err := c.doRequest(ctx, "GET", "/units/"+unit+"/authors", nil)
	if err != nil {
		return nil, err
	}

	var resp unitAuthorsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return resp.Authors, nil
}

// FundingAddress returns the address that funded the given address, used for
// referral lookups. Empty when the funding history is unknown.
func (c *Client) FundingAddress(ctx context.Context, address string) (string, error) {
	data, err := c.doRequest(ctx, "GET", "/addresses/"+address+"/funding", nil)
	if err != nil {
		return "", err
	}

	var resp fundingAddressResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	return resp.Address, nil
}

// SubscribeAddresses registers receiving addresses for payment events
// delivered to our webhook endpoint.
func (c *Client) SubscribeAddresses(ctx context.Context, endpoint string, addresses []string) error {
	body := subscribeRequest{Endpoint: endpoint, Addresses: addresses}
	_, err := c.doRequest(ctx, "POST", "/subscriptions", body)
	return err
}
