package cache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityCache_InitialFetchFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCapabilityCache(srv.URL, time.Minute, srv.Client(), nil, nil)
	err := c.Start(context.Background())
	require.Error(t, err)
}

func TestCapabilityCache_RefreshFailureRetainsPriorSnapshot(t *testing.T) {
	var requestCount atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requestCount.Add(1)
		if n == 1 {
			json.NewEncoder(w).Encode([]capabilityEntry{
				{ClientID: "C1", Capabilities: []string{"capA"}},
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCapabilityCache(srv.URL, time.Minute, srv.Client(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	first := c.ServiceData()
	assert.Equal(t, []string{"capA"}, first["C1"])

	// Force a failing refresh directly, bypassing the ticker.
	c.refresher.refreshOnce(context.Background())

	second := c.ServiceData()
	assert.Equal(t, first, second, "a failed refresh must retain the prior snapshot")
}

func TestCapabilityCache_ServiceData_NeverBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]capabilityEntry{{ClientID: "C1", Capabilities: []string{"capA"}}})
	}))
	defer srv.Close()

	c := NewCapabilityCache(srv.URL, time.Minute, srv.Client(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	done := make(chan struct{})
	go func() {
		c.ServiceData()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ServiceData blocked")
	}
}

func TestWebhookCache_RefreshAndServiceData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]webhookCatalogEntry{
			{ClientID: "C1", URL: "https://rp.example/hooks", Enabled: true},
		})
	}))
	defer srv.Close()

	c := NewWebhookCache(srv.URL, time.Minute, srv.Client(), nil, nil)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	snap := c.ServiceData()
	assert.Equal(t, WebhookEntry{URL: "https://rp.example/hooks", Enabled: true}, snap["C1"])
}
