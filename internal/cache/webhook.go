package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rp-notify/broker/internal/logging"
)

// WebhookEntry is one relying party's webhook delivery target.
type WebhookEntry struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// WebhookMap is an immutable snapshot of client_id -> WebhookEntry.
// Same refresh contract as CapabilityMap. The processor does not
// itself read this snapshot; it only keeps the cache running so a
// downstream webhook-delivery worker (out of scope here) can.
type WebhookMap map[string]WebhookEntry

type webhookCatalogEntry struct {
	ClientID string `json:"client_id"`
	URL      string `json:"url"`
	Enabled  bool   `json:"enabled"`
}

// WebhookCache is the self-updating client-webhook cache.
type WebhookCache struct {
	refresher *Refresher[WebhookMap]
}

// NewWebhookCache constructs a WebhookCache that fetches the full
// catalog from catalogURL at the given interval.
func NewWebhookCache(catalogURL string, interval time.Duration, httpClient *http.Client, logger *logging.Logger, lock RefreshLock) *WebhookCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	fetch := func(ctx context.Context) (WebhookMap, error) {
		return fetchWebhookCatalog(ctx, httpClient, catalogURL)
	}

	return &WebhookCache{
		refresher: NewRefresher("webhook", interval, fetch, logger, lock),
	}
}

// Start implements the self-updating cache contract.
func (c *WebhookCache) Start(ctx context.Context) error {
	return c.refresher.Start(ctx)
}

// Stop implements the self-updating cache contract.
func (c *WebhookCache) Stop() {
	c.refresher.Stop()
}

// ServiceData returns the latest installed WebhookMap snapshot.
func (c *WebhookCache) ServiceData() WebhookMap {
	return c.refresher.ServiceData()
}

func fetchWebhookCatalog(ctx context.Context, client *http.Client, catalogURL string) (WebhookMap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, catalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build webhook catalog request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch webhook catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook catalog returned status %d", resp.StatusCode)
	}

	var entries []webhookCatalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode webhook catalog: %w", err)
	}

	out := make(WebhookMap, len(entries))
	for _, e := range entries {
		out[e.ClientID] = WebhookEntry{URL: e.URL, Enabled: e.Enabled}
	}
	return out, nil
}
