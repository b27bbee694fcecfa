package servicetitan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// MaxPageSize is the largest page the jobs and invoices endpoints serve.
const MaxPageSize = 50

var ErrNotConfigured = errors.New("servicetitan credentials are not configured")

type Config struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	AppKey       string
	BaseURL      string
	AuthURL      string
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("servicetitan %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

type Client struct {
	http     *http.Client
	baseURL  string
	tenantID string
	appKey   string

	mu           sync.Mutex
	paymentTypes map[int64]string
}

// NewClient builds a client whose token is fetched with client credentials and
// cached until shortly before expiry.
func NewClient(ctx context.Context, cfg Config) *Client {
	base := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.AuthURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	httpClient := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	httpClient.Timeout = 30 * time.Second

	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenantID: cfg.TenantID,
		appKey:   cfg.AppKey,
	}
}

func (c *Client) tenantPath(module, resource string) string {
	return fmt.Sprintf("%s/v2/tenant/%s/%s", module, c.tenantID, resource)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := c.baseURL + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("ST-App-Key", c.appKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("servicetitan %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read servicetitan response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > 500 {
			snippet = snippet[:500]
		}
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: snippet}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode servicetitan response: %w", err)
	}
	return nil
}

// ListInvoices fetches one page of invoices modified on or after since.
func (c *Client) ListInvoices(ctx context.Context, since time.Time, page, pageSize int) (*Page[Invoice], error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}

	q := url.Values{}
	q.Set("modifiedOnOrAfter", since.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var out Page[Invoice]
	if err := c.do(ctx, http.MethodGet, c.tenantPath("accounting", "invoices"), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInvoice fetches a single invoice.
func (c *Client) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	var out Invoice
	if err := c.do(ctx, http.MethodGet, c.tenantPath("accounting", "invoices/"+strconv.FormatInt(id, 10)), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentsForInvoice returns the payments applied to invoiceID. The API's
// invoice filter is unreliable, so payments are narrowed by customer and then
// matched on appliedTo.
func (c *Client) PaymentsForInvoice(ctx context.Context, invoiceID, customerID int64) ([]Payment, error) {
	q := url.Values{}
	if customerID > 0 {
		q.Set("customerId", strconv.FormatInt(customerID, 10))
		q.Set("pageSize", "100")
	} else {
		q.Set("modifiedOnOrAfter", time.Now().UTC().AddDate(0, 0, -90).Format(time.DateOnly))
		q.Set("pageSize", "500")
	}

	var out Page[Payment]
	if err := c.do(ctx, http.MethodGet, c.tenantPath("accounting", "payments"), q, nil, &out); err != nil {
		return nil, err
	}

	var matched []Payment
	for _, p := range out.Data {
		if p.AppliesTo(invoiceID) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// PaymentTypes maps payment type ids to names. The result is cached for the
// lifetime of the client.
func (c *Client) PaymentTypes(ctx context.Context) (map[int64]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paymentTypes != nil {
		return c.paymentTypes, nil
	}

	q := url.Values{}
	q.Set("pageSize", "100")

	var out Page[Ref]
	if err := c.do(ctx, http.MethodGet, c.tenantPath("accounting", "payment-types"), q, nil, &out); err != nil {
		return nil, err
	}

	types := make(map[int64]string, len(out.Data))
	for _, t := range out.Data {
		types[t.ID] = t.Name
	}
	c.paymentTypes = types
	return types, nil
}

// CreateTask creates a task in ServiceTitan task management and returns its id.
func (c *Client) CreateTask(ctx context.Context, task TaskRequest) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.tenantPath("taskmanagement", "tasks"), nil, task, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateTask patches an existing task management task.
func (c *Client) UpdateTask(ctx context.Context, id int64, task TaskUpdate) error {
	return c.do(ctx, http.MethodPatch, c.tenantPath("taskmanagement", fmt.Sprintf("tasks/%d", id)), nil, task, nil)
}
