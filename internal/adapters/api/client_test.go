package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modula-erp/emag-sync-go/internal/adapters/api"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type fakePermit struct {
	mu    sync.Mutex
	calls int
}

func (f *fakePermit) Acquire(ctx context.Context, account shared.Account, class string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakePermit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okEnvelope(t *testing.T, results any) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"isError":  false,
		"messages": []string{},
		"results":  results,
	})
	require.NoError(t, err)
	return string(payload)
}

func newTestClient(t *testing.T, baseURL string, clock shared.Clock) (*api.Client, *fakePermit) {
	t.Helper()
	permits := &fakePermit{}
	client := api.NewClient(api.ClientConfig{
		Accounts: map[shared.Account]api.AccountConfig{
			shared.AccountMain: {BaseURL: baseURL, Username: "seller", Password: "secret"},
			shared.AccountFBE:  {BaseURL: baseURL, Username: "seller-fbe", Password: "secret"},
		},
	}, permits, clock, rand.New(rand.NewSource(1)), nil, nil)
	return client, permits
}

func TestClient_SuccessfulCall(t *testing.T) {
	var gotAuthUser, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		require.True(t, ok, "basic auth required")
		gotAuthUser = user
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		fmt.Fprint(w, okEnvelope(t, []map[string]any{{"id": 1}}))
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	env, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountMain, syncrun.ClassOther, map[string]any{"currentPage": 1, "name": "a<b"}, nil)

	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "seller", gotAuthUser)
	assert.Contains(t, gotBody, `"currentPage":1`, "compact json")
	assert.Contains(t, gotBody, `"name":"a<b"`, "no html escaping")

	var rows []map[string]any
	require.NoError(t, env.DecodeResults(&rows))
	assert.Len(t, rows, 1)
}

func TestClient_Retries429HonoringRetryAfter(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, okEnvelope(t, []any{}))
	}))
	defer server.Close()
	clock := shared.NewMockClock(t0)
	client, permits := newTestClient(t, server.URL, clock)

	_, err := client.Call(context.Background(), http.MethodPost, "order/read",
		shared.AccountMain, syncrun.ClassOrders, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "one retry")
	assert.Equal(t, 2, permits.count(), "a permit per attempt")
	assert.Equal(t, time.Second, clock.Now().Sub(t0), "server delay honored verbatim")
}

func TestClient_ExhaustsRetriesOn5xx(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	client, permits := newTestClient(t, server.URL, shared.NewMockClock(t0))

	_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountMain, syncrun.ClassOther, nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNetwork)
	assert.Equal(t, int32(4), hits.Load(), "initial attempt plus three retries")
	assert.Equal(t, 4, permits.count())
}

func TestClient_DoesNotRetryValidationErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"isError": true, "messages": [{"text": "invalid category"}], "results": []}`)
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	_, err := client.Call(context.Background(), http.MethodPost, "product_offer/save",
		shared.AccountMain, syncrun.ClassOther, nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRemoteValidation)
	assert.Equal(t, int32(1), hits.Load())

	var remote *shared.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Messages, "invalid category")
}

func TestClient_AuthFailureSurfacesImmediately(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountMain, syncrun.ClassOther, nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrAuth)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_EnvelopeErrorsAreRemoteValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"isError true", `{"isError": true, "messages": [{"text": "sku taken"}], "results": []}`},
		{"missing isError", `{"messages": [], "results": []}`},
		{"garbage body", `<html>gateway</html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()
			client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

			_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
				shared.AccountMain, syncrun.ClassOther, nil, nil)

			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrRemoteValidation)
			assert.Equal(t, int32(1), hits.Load(), "status 200 failures are not transport failures")
		})
	}
}

func TestClient_BudgetStopsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	client := api.NewClient(api.ClientConfig{
		Accounts: map[shared.Account]api.AccountConfig{
			shared.AccountMain: {BaseURL: server.URL, Username: "seller", Password: "secret"},
		},
		TotalBudget: 500 * time.Millisecond,
	}, &fakePermit{}, shared.NewMockClock(t0), rand.New(rand.NewSource(1)), nil, nil)

	_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountMain, syncrun.ClassOther, nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNetwork)
	assert.Equal(t, int32(1), hits.Load(), "first backoff would blow the budget")
}

func TestClient_TimeoutsAreCategorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()
	client := api.NewClient(api.ClientConfig{
		Accounts: map[shared.Account]api.AccountConfig{
			shared.AccountMain: {BaseURL: server.URL, Username: "seller", Password: "secret"},
		},
		MaxRetries: 1,
		HTTPClient: &http.Client{Timeout: 10 * time.Millisecond},
	}, &fakePermit{}, shared.NewMockClock(t0), rand.New(rand.NewSource(1)), nil, nil)

	_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountMain, syncrun.ClassOther, nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTimeout)
}

func TestClient_TransportRateSpacesSends(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, okEnvelope(t, []any{}))
	}))
	defer server.Close()
	client := api.NewClient(api.ClientConfig{
		Accounts: map[shared.Account]api.AccountConfig{
			shared.AccountMain: {BaseURL: server.URL, Username: "seller", Password: "secret"},
		},
		TransportRate: 20,
	}, &fakePermit{}, shared.NewMockClock(t0), rand.New(rand.NewSource(1)), nil, nil)

	_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountMain, syncrun.ClassOther, nil, nil)
	require.NoError(t, err)

	begin := time.Now()
	_, err = client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountMain, syncrun.ClassOther, nil, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(begin), 40*time.Millisecond,
		"second send waits for the 50ms pace slot")
}

func TestClient_UnknownAccountRejected(t *testing.T) {
	client, _ := newTestClient(t, "http://127.0.0.1:0", shared.NewMockClock(t0))

	_, err := client.Call(context.Background(), http.MethodGet, "vat/read",
		"warehouse", syncrun.ClassOther, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestClient_BreakerOpensAndRecovers(t *testing.T) {
	var unauthorized atomic.Bool
	unauthorized.Store(true)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if unauthorized.Load() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, okEnvelope(t, []any{}))
	}))
	defer server.Close()
	clock := shared.NewMockClock(t0)
	client, _ := newTestClient(t, server.URL, clock)

	for i := 0; i < 5; i++ {
		_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
			shared.AccountMain, syncrun.ClassOther, nil, nil)
		require.ErrorIs(t, err, shared.ErrAuth)
	}
	require.Equal(t, int32(5), hits.Load())
	require.Equal(t, api.CircuitOpen, client.Breaker(shared.AccountMain).State())

	// Open circuit fails fast without a network attempt.
	_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountMain, syncrun.ClassOther, nil, nil)
	assert.ErrorIs(t, err, shared.ErrCircuitOpen)
	assert.Equal(t, int32(5), hits.Load())

	// After the cooldown the probe goes through and closes the circuit.
	unauthorized.Store(false)
	clock.Advance(60 * time.Second)
	_, err = client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountMain, syncrun.ClassOther, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, api.CircuitClosed, client.Breaker(shared.AccountMain).State())
}

func TestClient_AccountsHaveIndependentBreakers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		if user == "seller" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, okEnvelope(t, []any{}))
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	for i := 0; i < 5; i++ {
		_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
			shared.AccountMain, syncrun.ClassOther, nil, nil)
		require.Error(t, err)
	}
	require.Equal(t, api.CircuitOpen, client.Breaker(shared.AccountMain).State())

	_, err := client.Call(context.Background(), http.MethodPost, "product_offer/read",
		shared.AccountFBE, syncrun.ClassOther, nil, nil)
	assert.NoError(t, err, "fbe account unaffected by main's breaker")
}
