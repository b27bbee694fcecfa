package servicetitan

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServiceTitan struct {
	tokenCalls       atomic.Int32
	paymentTypeCalls atomic.Int32
	failInvoices     atomic.Bool

	mu               sync.Mutex
	lastTask         TaskRequest
	lastUpdate       TaskUpdate
	lastUpdatePath   string
	lastInvoiceQuery string
}

func (f *fakeServiceTitan) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		_ = r.ParseForm()
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "cid", r.Form.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"Bearer","expires_in":900}`)
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("ST-App-Key") != "app-key" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/accounting/v2/tenant/42/invoices", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastInvoiceQuery = r.URL.RawQuery
		f.mu.Unlock()
		if f.failInvoices.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "maintenance")
			return
		}
		_, _ = io.WriteString(w, `{"page":1,"pageSize":50,"hasMore":true,"data":[
			{"id":1001,"referenceNumber":"INV-1","invoiceDate":"2026-03-01T00:00:00Z","total":"250.50","balance":100,
			 "customer":{"id":7,"name":"Ada"},"job":{"id":9,"number":"J-9"},"businessUnit":{"id":3,"name":"HVAC"}}]}`)
	}))

	mux.HandleFunc("/accounting/v2/tenant/42/payments", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("customerId"))
		_, _ = io.WriteString(w, `{"hasMore":false,"data":[
			{"id":1,"typeId":5,"total":"60","appliedTo":[{"appliedTo":1001,"appliedAmount":"40"},{"appliedTo":2000,"appliedAmount":"20"}]},
			{"id":2,"typeId":5,"total":"10","appliedTo":[{"appliedTo":2000,"appliedAmount":"10"}]}]}`)
	}))

	mux.HandleFunc("/accounting/v2/tenant/42/payment-types", authed(func(w http.ResponseWriter, r *http.Request) {
		f.paymentTypeCalls.Add(1)
		_, _ = io.WriteString(w, `{"data":[{"id":5,"name":"Check"},{"id":6,"name":"Card"}]}`)
	}))

	mux.HandleFunc("/taskmanagement/v2/tenant/42/tasks", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		assert.NoError(t, json.Unmarshal(body, &f.lastTask))
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":555}`)
	}))

	mux.HandleFunc("/taskmanagement/v2/tenant/42/tasks/", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastUpdatePath = r.URL.Path
		assert.NoError(t, json.Unmarshal(body, &f.lastUpdate))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeServiceTitan) {
	t.Helper()
	fake := &fakeServiceTitan{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c := NewClient(context.Background(), Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		TenantID:     "42",
		AppKey:       "app-key",
		BaseURL:      srv.URL + "/",
		AuthURL:      srv.URL + "/connect/token",
	})
	return c, fake
}

func TestListInvoices(t *testing.T) {
	c, fake := newTestClient(t)

	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	page, err := c.ListInvoices(context.Background(), since, 2, 500)
	require.NoError(t, err)

	assert.True(t, page.HasMore)
	require.Len(t, page.Data, 1)
	inv := page.Data[0]
	assert.Equal(t, int64(1001), inv.ID)
	total, err := inv.Total.Decimal()
	require.NoError(t, err)
	assert.Equal(t, "250.5", total.String())
	assert.Equal(t, Amount("100"), inv.Balance)
	assert.Equal(t, "HVAC", inv.BusinessUnit.Name)
	assert.Contains(t, fake.lastInvoiceQuery, "pageSize=50")
	assert.Contains(t, fake.lastInvoiceQuery, "page=2")

	_, err = c.ListInvoices(context.Background(), since, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load(), "token is reused until it expires")
}

func TestListInvoices_UpstreamError(t *testing.T) {
	c, fake := newTestClient(t)
	fake.failInvoices.Store(true)

	_, err := c.ListInvoices(context.Background(), time.Now(), 1, 50)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.True(t, strings.Contains(apiErr.Error(), "maintenance"))
}

func TestPaymentsForInvoice(t *testing.T) {
	c, _ := newTestClient(t)

	payments, err := c.PaymentsForInvoice(context.Background(), 1001, 7)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "40", payments[0].AmountFor(1001).String())
}

func TestPaymentTypes_Cached(t *testing.T) {
	c, fake := newTestClient(t)

	for i := 0; i < 3; i++ {
		types, err := c.PaymentTypes(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Check", types[5])
	}
	assert.Equal(t, int32(1), fake.paymentTypeCalls.Load())
}

func TestCreateTask(t *testing.T) {
	c, fake := newTestClient(t)

	id, err := c.CreateTask(context.Background(), TaskRequest{Name: "Call customer", Priority: "Low"})
	require.NoError(t, err)
	assert.Equal(t, int64(555), id)
	assert.Equal(t, "Call customer", fake.lastTask.Name)
	assert.False(t, fake.lastTask.IsClosed)
}

func TestUpdateTask(t *testing.T) {
	c, fake := newTestClient(t)

	err := c.UpdateTask(context.Background(), 555, TaskUpdate{Name: "Call customer", IsClosed: true, Priority: "Low"})
	require.NoError(t, err)
	assert.Equal(t, "/taskmanagement/v2/tenant/42/tasks/555", fake.lastUpdatePath)
	assert.True(t, fake.lastUpdate.IsClosed)
	assert.Equal(t, "Call customer", fake.lastUpdate.Name)
}
