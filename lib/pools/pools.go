// Package pools maintains the directory of mining-pool stats endpoints the gateway samples for the pool-network
// consensus. The directory is fetched from a configured URL and kept as an immutable snapshot that is swapped
// wholesale on refresh, so in-flight aggregations always see a consistent list.
package pools

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Pool identifies one mining pool's stats endpoint.
type Pool struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Errors returned
var (
	ErrBadStatus = errors.New("pool directory replied with a non-OK http status")
)

// Directory holds the current pool list. Snapshot readers are never blocked by a refresh.
type Directory struct {
	url string
	c   *http.Client

	list atomic.Value // []Pool
}

// New returns a directory for the given url. The list is empty until the first successful Refresh.
func New(url string, timeout time.Duration) *Directory {
	d := &Directory{
		url: url,
		c:   &http.Client{Timeout: timeout},
	}
	d.list.Store([]Pool{})

	return d
}

// Snapshot returns the current pool list. Callers must not modify it.
func (d *Directory) Snapshot() []Pool {
	return d.list.Load().([]Pool)
}

// Refresh fetches the directory and swaps in the new list. On any failure the previous snapshot is kept.
func (d *Directory) Refresh() error {
	resp, err := d.c.Get(d.url)
	if err != nil {
		return fmt.Errorf("pools: fetch directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pools: fetch directory: %d: %w", resp.StatusCode, ErrBadStatus)
	}

	var doc struct {
		Pools []Pool `json:"pools"`
	}

	if err = json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("pools: decode directory: %w", err)
	}

	d.list.Store(doc.Pools)

	return nil
}

// Stats fetches one pool's stats document. A separate client call per pool keeps failures isolated.
func (d *Directory) Stats(p Pool) (map[string]interface{}, error) {
	resp, err := d.c.Get(p.URL)
	if err != nil {
		return nil, fmt.Errorf("pools: fetch %s stats: %w", p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pools: fetch %s stats: %d: %w", p.Name, resp.StatusCode, ErrBadStatus)
	}

	var m map[string]interface{}
	if err = json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("pools: decode %s stats: %w", p.Name, err)
	}

	return m, nil
}
