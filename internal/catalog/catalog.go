// Package catalog holds the static token metadata the app browses and joins
// onto owned token IDs.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// PlaceholderPrice is shown for tokens missing from the catalog.
const PlaceholderPrice = "0.002"

// Errors.
var (
	ErrDuplicateID = errors.New("duplicate token id in catalog")
	ErrNotFound    = errors.New("token not in catalog")
)

// TokenMetadataEntry is one catalog item. Price is a decimal string in ether.
type TokenMetadataEntry struct {
	ID       uint64 `json:"id"`
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Price    string `json:"price"`
}

// Placeholder builds the entry used when id has no catalog metadata.
func Placeholder(id uint64) TokenMetadataEntry {
	return TokenMetadataEntry{
		ID:       id,
		Filename: fmt.Sprintf("%d.png", id),
		Name:     fmt.Sprintf("NFT #%d", id),
		Price:    PlaceholderPrice,
	}
}

// Catalog is an immutable, id-indexed set of entries.
type Catalog struct {
	entries []TokenMetadataEntry // sorted by ID
	byID    map[uint64]int
}

// New builds a catalog. Entries are copied and sorted by ID.
func New(entries []TokenMetadataEntry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]TokenMetadataEntry, len(entries)),
		byID:    make(map[uint64]int, len(entries)),
	}
	copy(c.entries, entries)
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].ID < c.entries[j].ID })

	for i, e := range c.entries {
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, e.ID)
		}
		c.byID[e.ID] = i
	}
	return c, nil
}

// Parse decodes a JSON array of entries.
func Parse(data []byte) (*Catalog, error) {
	var entries []TokenMetadataEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return New(entries)
}

// Load reads the catalog from an http(s) URL or a local file path.
func Load(ctx context.Context, source string) (*Catalog, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetch(ctx, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(data)
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func fetch(ctx context.Context, url string) (*Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching catalog: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(data)
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// All returns a copy of every entry, sorted by ID.
func (c *Catalog) All() []TokenMetadataEntry {
	out := make([]TokenMetadataEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Get returns the entry for id.
func (c *Catalog) Get(id uint64) (TokenMetadataEntry, error) {
	i, ok := c.byID[id]
	if !ok {
		return TokenMetadataEntry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return c.entries[i], nil
}

// Lookup returns the entry for id, or its placeholder. Missing fields of a
// known entry are filled from the placeholder too.
func (c *Catalog) Lookup(id uint64) TokenMetadataEntry {
	ph := Placeholder(id)
	if c == nil {
		return ph
	}
	e, err := c.Get(id)
	if err != nil {
		return ph
	}
	if e.Name == "" {
		e.Name = ph.Name
	}
	if e.Filename == "" {
		e.Filename = ph.Filename
	}
	if e.Price == "" {
		e.Price = ph.Price
	}
	return e
}
