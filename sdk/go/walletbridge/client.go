// Package walletbridge is a Go client for the WalletBridge REST API.
package walletbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom
// http.Client. Executions with Wait set may need a longer one.
const DefaultHTTPTimeout = 60 * time.Second

// Client wraps the HTTP interactions with the WalletBridge API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Chains lists the configured chains.
type Chains struct {
	Default string   `json:"default"`
	Chains  []string `json:"chains"`
}

// Accounts is the wallet state on one chain.
type Accounts struct {
	Chain     string   `json:"chain"`
	Connected bool     `json:"connected"`
	Accounts  []string `json:"accounts"`
}

// ExecuteRequest describes a contract method invocation. Set either ABI or
// Builtin ("erc20", "erc721").
type ExecuteRequest struct {
	Chain    string            `json:"chain,omitempty"`
	Contract string            `json:"contract"`
	Name     string            `json:"name,omitempty"`
	ABI      json.RawMessage   `json:"abi,omitempty"`
	Builtin  string            `json:"builtin,omitempty"`
	Method   string            `json:"method"`
	Args     []json.RawMessage `json:"args,omitempty"`
	Value    string            `json:"value,omitempty"`
	GasLimit uint64            `json:"gas_limit,omitempty"`
	Wait     bool              `json:"wait,omitempty"`
}

// Invocation is a journaled contract invocation.
type Invocation struct {
	ID           string          `json:"id"`
	Chain        string          `json:"chain,omitempty"`
	Contract     string          `json:"contract"`
	ContractName string          `json:"contract_name,omitempty"`
	Method       string          `json:"method"`
	Args         json.RawMessage `json:"args,omitempty"`
	Kind         string          `json:"kind"`
	From         string          `json:"from,omitempty"`
	TxHash       string          `json:"tx_hash,omitempty"`
	Status       string          `json:"status"`
	Output       json.RawMessage `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	BlockNumber  uint64          `json:"block_number,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	UpdatedAt    int64           `json:"updated_at"`
}

// ListOptions filters ListInvocations.
type ListOptions struct {
	Limit  int
	Status string
	Chain  string
}

// Stats summarises journaled invocations by status.
type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	Reverted        int   `json:"reverted"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// APIError represents server side validation or internal errors. For
// failed executions Invocation holds the journaled record.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Invocation *Invocation
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("walletbridge api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("walletbridge api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the API at rawURL. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chains returns the configured chains.
func (c *Client) Chains(ctx context.Context) (Chains, error) {
	var out Chains
	err := c.do(ctx, http.MethodGet, "/api/v1/chains", nil, nil, &out)
	return out, err
}

// Connect asks the server's wallet for account access on chain; an empty
// chain selects the default.
func (c *Client) Connect(ctx context.Context, chain string) (Accounts, error) {
	var out Accounts
	err := c.do(ctx, http.MethodPost, "/api/v1/wallet/connect", nil, map[string]string{"chain": chain}, &out)
	return out, err
}

// Accounts returns the accounts from the last connection without prompting.
func (c *Client) Accounts(ctx context.Context, chain string) (Accounts, error) {
	var out Accounts
	err := c.do(ctx, http.MethodGet, "/api/v1/wallet/accounts", chainQuery(chain), nil, &out)
	return out, err
}

// Execute invokes a contract method.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (Invocation, error) {
	var out Invocation
	err := c.do(ctx, http.MethodPost, "/api/v1/contracts/execute", nil, req, &out)
	return out, err
}

// GetInvocation fetches one invocation by ID.
func (c *Client) GetInvocation(ctx context.Context, id string) (Invocation, error) {
	var out Invocation
	err := c.do(ctx, http.MethodGet, "/api/v1/invocations/"+id, nil, nil, &out)
	return out, err
}

// ListInvocations returns the latest invocations.
func (c *Client) ListInvocations(ctx context.Context, opts ListOptions) ([]Invocation, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if opts.Chain != "" {
		query.Set("chain", opts.Chain)
	}
	var out []Invocation
	err := c.do(ctx, http.MethodGet, "/api/v1/invocations", query, nil, &out)
	return out, err
}

// InvocationStats returns status counts for invocations matching opts.
// opts.Limit is ignored.
func (c *Client) InvocationStats(ctx context.Context, opts ListOptions) (Stats, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if opts.Chain != "" {
		query.Set("chain", opts.Chain)
	}
	var out Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/invocations/stats", query, nil, &out)
	return out, err
}

func chainQuery(chain string) url.Values {
	if chain == "" {
		return nil
	}
	return url.Values{"chain": []string{chain}}
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	var envelope struct {
		Error      *APIError   `json:"error"`
		Invocation *Invocation `json:"invocation"`
	}
	envelope.Error = apiErr
	if len(data) > 0 && json.Unmarshal(data, &envelope) == nil {
		apiErr.Invocation = envelope.Invocation
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
