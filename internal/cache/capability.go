package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rp-notify/broker/internal/logging"
)

// CapabilityMap is an immutable snapshot of client_id -> ordered set of
// capability strings. It is replaced wholesale on each refresh; the
// processor's subscription fan-out is the only reader.
type CapabilityMap map[string][]string

// capabilityEntry is the wire shape of one row in the capability catalog.
type capabilityEntry struct {
	ClientID     string   `json:"client_id"`
	Capabilities []string `json:"capabilities"`
}

// CapabilityCache is the self-updating client-capability cache.
type CapabilityCache struct {
	refresher *Refresher[CapabilityMap]
}

// NewCapabilityCache constructs a CapabilityCache that fetches the full
// catalog from catalogURL at the given interval.
func NewCapabilityCache(catalogURL string, interval time.Duration, httpClient *http.Client, logger *logging.Logger, lock RefreshLock) *CapabilityCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	fetch := func(ctx context.Context) (CapabilityMap, error) {
		return fetchCapabilityCatalog(ctx, httpClient, catalogURL)
	}

	return &CapabilityCache{
		refresher: NewRefresher("capability", interval, fetch, logger, lock),
	}
}

// Start implements the self-updating cache contract.
func (c *CapabilityCache) Start(ctx context.Context) error {
	return c.refresher.Start(ctx)
}

// Stop implements the self-updating cache contract.
func (c *CapabilityCache) Stop() {
	c.refresher.Stop()
}

// ServiceData returns the latest installed CapabilityMap snapshot.
func (c *CapabilityCache) ServiceData() CapabilityMap {
	return c.refresher.ServiceData()
}

func fetchCapabilityCatalog(ctx context.Context, client *http.Client, catalogURL string) (CapabilityMap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, catalogURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build capability catalog request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch capability catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capability catalog returned status %d", resp.StatusCode)
	}

	var entries []capabilityEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode capability catalog: %w", err)
	}

	out := make(CapabilityMap, len(entries))
	for _, e := range entries {
		out[e.ClientID] = e.Capabilities
	}
	return out, nil
}
