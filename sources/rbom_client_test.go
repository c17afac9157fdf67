package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monthlyPayloads = map[string]string{
	"2025-7": `[
		{"PONO": "100", "LINENO": 1, "HMCD": "A", "RCVQTY": 10, "DRVDT": "2025-07-10"},
		{"PONO": "100", "LINENO": 2, "HMCD": "B", "RCVQTY": 5, "DRVDT": "2025-07-20"},
		{"PONO": "101", "LINENO": 1, "HMCD": "C", "RCVQTY": 1, "DRVDT": null},
		{"PONO": "102", "LINENO": 1, "HMCD": "D", "RCVQTY": 1, "DRVDT": "TBD"}
	]`,
	"2025-8": `[{"PONO": "200", "LINENO": 1, "HMCD": "E", "RCVQTY": "3", "DRVDT": "2025/08/05"}]`,
	"2025-9": `[
		{"PONO": "300", "LINENO": 1, "HMCD": "F", "RCVQTY": 2, "DRVDT": "2025-09-01"},
		{"PONO": "300", "LINENO": 2, "HMCD": "G", "RCVQTY": 2, "DRVDT": "2025-09-20"}
	]`,
}

func newRBOMServer(t *testing.T, hits *int32, failMonth string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/orders/" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-API-KEY") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		key := fmt.Sprintf("%s-%s", r.URL.Query().Get("year"), r.URL.Query().Get("month"))
		if key == failMonth {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		payload, ok := monthlyPayloads[key]
		if !ok {
			payload = `[]`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRBOMClientFetchOrderDetails(t *testing.T) {
	var hits int32
	srv := newRBOMServer(t, &hits, "")
	client := NewRBOMClient(RBOMConfig{BaseURL: srv.URL, APIKey: "secret", CacheTTL: time.Minute}, quietLogger())

	r := mustRange(t, "2025-07-15", "2025-09-10")
	recs, err := client.FetchOrderDetails(context.Background(), r)
	require.NoError(t, err)

	var keys []string
	for _, rec := range recs {
		keys = append(keys, fmt.Sprintf("%s/%d", rec.OrderNo, rec.LineNo))
	}
	assert.Equal(t, []string{"100/2", "101/1", "102/1", "200/1", "300/1"}, keys)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	_, err = client.FetchOrderDetails(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits), "months should be served from cache")

	client.PurgeCache()
	_, err = client.FetchOrderDetails(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, int32(6), atomic.LoadInt32(&hits))
}

func TestRBOMClientPropagatesMonthFailure(t *testing.T) {
	var hits int32
	srv := newRBOMServer(t, &hits, "2025-8")
	client := NewRBOMClient(RBOMConfig{BaseURL: srv.URL, APIKey: "secret"}, quietLogger())

	_, err := client.FetchOrderDetails(context.Background(), mustRange(t, "2025-07-01", "2025-09-30"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "2025-08")
}

func TestRBOMClientRejectsBadKeyAndRange(t *testing.T) {
	var hits int32
	srv := newRBOMServer(t, &hits, "")
	client := NewRBOMClient(RBOMConfig{BaseURL: srv.URL + "/", APIKey: "wrong"}, quietLogger())

	_, err := client.GetOrders(context.Background(), 2025, time.July)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, client.Ping(context.Background()), ErrSourceUnavailable)

	_, err = client.FetchOrderDetails(context.Background(), DateRange{})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestRBOMClientPing(t *testing.T) {
	var hits int32
	srv := newRBOMServer(t, &hits, "")
	client := NewRBOMClient(RBOMConfig{BaseURL: srv.URL, APIKey: "secret"}, quietLogger())
	assert.NoError(t, client.Ping(context.Background()))
}
