// Package verify submits contract source to an Etherscan-compatible
// explorer and waits for the verification verdict.
package verify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrVerificationFailed is returned when the explorer rejects the source.
var ErrVerificationFailed = errors.New("verification failed")

// explorerResponse is the Etherscan API envelope. Result is a GUID, a status
// line, or an error message depending on the call.
type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r *explorerResponse) resultString() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}

// Request describes one contract to verify.
type Request struct {
	Address         common.Address
	ContractName    string // fully qualified: contracts/Raffle.sol:Raffle
	CompilerVersion string // solc long version, "v" prefix optional
	StandardJSON    json.RawMessage
	ConstructorArgs []byte
}

// Result is the final verification outcome.
type Result struct {
	GUID            string
	AlreadyVerified bool
	Message         string
}

// Client talks to one explorer API for one chain.
type Client struct {
	apiURL  string
	apiKey  string
	chainID int64
	http    *http.Client
	poll    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithPollInterval sets how often verification status is checked.
func WithPollInterval(d time.Duration) Option { return func(c *Client) { c.poll = d } }

// NewClient creates an explorer client. apiURL is the v2 endpoint
// (https://api.etherscan.io/v2/api); chainID selects the chain.
func NewClient(apiURL, apiKey string, chainID int64, opts ...Option) *Client {
	c := &Client{
		apiURL:  apiURL,
		apiKey:  apiKey,
		chainID: chainID,
		http:    &http.Client{Timeout: 30 * time.Second},
		poll:    5 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) endpoint() string {
	sep := "?"
	if strings.Contains(c.apiURL, "?") {
		sep = "&"
	}
	return c.apiURL + sep + "chainid=" + strconv.FormatInt(c.chainID, 10)
}

// Verify submits req and polls until the explorer reaches a verdict.
// A contract that is already verified counts as success.
func (c *Client) Verify(ctx context.Context, req Request) (*Result, error) {
	guid, already, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if already {
		return &Result{AlreadyVerified: true, Message: "Already Verified"}, nil
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for verification %s: %w", guid, ctx.Err())
		case <-ticker.C:
		}
		status, err := c.checkStatus(ctx, guid)
		if err != nil {
			return nil, err
		}
		lower := strings.ToLower(status)
		switch {
		case strings.Contains(lower, "pending"):
			continue
		case strings.Contains(lower, "already verified"):
			return &Result{GUID: guid, AlreadyVerified: true, Message: status}, nil
		case strings.HasPrefix(lower, "pass"):
			return &Result{GUID: guid, Message: status}, nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, status)
		}
	}
}

// submit posts verifysourcecode. The explorer may not have indexed a fresh
// deployment yet, so "unable to locate ContractCode" is retried.
func (c *Client) submit(ctx context.Context, req Request) (guid string, alreadyVerified bool, err error) {
	version := req.CompilerVersion
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	form := url.Values{
		"apikey":                {c.apiKey},
		"module":                {"contract"},
		"action":                {"verifysourcecode"},
		"contractaddress":       {req.Address.Hex()},
		"sourceCode":            {string(req.StandardJSON)},
		"codeformat":            {"solidity-standard-json-input"},
		"contractname":          {req.ContractName},
		"compilerversion":       {version},
		"constructorArguements": {hex.EncodeToString(req.ConstructorArgs)},
	}

	const attempts = 5
	for i := 0; ; i++ {
		resp, err := c.do(ctx, http.MethodPost, c.endpoint(), strings.NewReader(form.Encode()))
		if err != nil {
			return "", false, err
		}
		result := resp.resultString()
		if resp.Status == "1" {
			return result, false, nil
		}
		lower := strings.ToLower(result)
		switch {
		case strings.Contains(lower, "already verified"):
			return "", true, nil
		case strings.Contains(lower, "unable to locate contractcode") && i < attempts-1:
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(c.poll):
			}
			continue
		}
		return "", false, fmt.Errorf("%w: %s: %s", ErrVerificationFailed, resp.Message, result)
	}
}

func (c *Client) checkStatus(ctx context.Context, guid string) (string, error) {
	q := url.Values{
		"apikey": {c.apiKey},
		"module": {"contract"},
		"action": {"checkverifystatus"},
		"guid":   {guid},
	}
	resp, err := c.do(ctx, http.MethodGet, c.endpoint()+"&"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	return resp.resultString(), nil
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader) (*explorerResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned HTTP %d", resp.StatusCode)
	}
	var out explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding explorer response: %w", err)
	}
	return &out, nil
}
