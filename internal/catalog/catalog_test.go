package catalog_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/koneko/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `[
  {"id": 3, "filename": "3.png", "name": "Koneko Tabby", "price": "0.01"},
  {"id": 1, "filename": "1.png", "name": "Koneko Calico", "price": "0.002"},
  {"id": 2, "filename": "2.png", "name": "Sleepy Tabby", "price": "0.005"}
]`

func TestParseSortsByID(t *testing.T) {
	c, err := catalog.Parse([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())

	all := c.All()
	assert.Equal(t, uint64(1), all[0].ID)
	assert.Equal(t, uint64(3), all[2].ID)
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	_, err := catalog.Parse([]byte(`[{"id":1,"name":"a"},{"id":1,"name":"b"}]`))
	assert.ErrorIs(t, err, catalog.ErrDuplicateID)
}

func TestLookupFallsBackToPlaceholder(t *testing.T) {
	c, err := catalog.Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "Koneko Calico", c.Lookup(1).Name)

	missing := c.Lookup(42)
	assert.Equal(t, catalog.TokenMetadataEntry{ID: 42, Filename: "42.png", Name: "NFT #42", Price: "0.002"}, missing)

	_, err = c.Get(42)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestLookupFillsMissingFields(t *testing.T) {
	c, err := catalog.Parse([]byte(`[{"id":7,"name":"Lucky"}]`))
	require.NoError(t, err)

	e := c.Lookup(7)
	assert.Equal(t, "Lucky", e.Name)
	assert.Equal(t, "7.png", e.Filename)
	assert.Equal(t, catalog.PlaceholderPrice, e.Price)
}

func TestNilCatalogLookup(t *testing.T) {
	var c *catalog.Catalog
	assert.Equal(t, "NFT #5", c.Lookup(5).Name)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	c, err := catalog.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
}

func TestLoadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sample)) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := catalog.Load(context.Background(), srv.URL+"/room/metadata.json")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
}

func TestLoadFromURLHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := catalog.Load(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

// ---------------------------------------------------------------------------
// Find / Count
// ---------------------------------------------------------------------------

func bigCatalog(t *testing.T, n int) *catalog.Catalog {
	t.Helper()
	entries := make([]catalog.TokenMetadataEntry, n)
	for i := range entries {
		id := uint64(i + 1)
		entries[i] = catalog.TokenMetadataEntry{ID: id, Name: fmt.Sprintf("Cat %d", id), Price: "0.002"}
	}
	c, err := catalog.New(entries)
	require.NoError(t, err)
	return c
}

func TestFindPaginates(t *testing.T) {
	c := bigCatalog(t, 40)

	p := c.Find(catalog.Query{Page: 3})
	assert.Equal(t, 40, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	assert.Len(t, p.Items, 4)
	assert.Equal(t, uint64(37), p.Items[0].ID)

	clamped := c.Find(catalog.Query{Page: 99})
	assert.Equal(t, 3, clamped.Page)
}

func TestFindSearchIsCaseInsensitive(t *testing.T) {
	c, err := catalog.Parse([]byte(sample))
	require.NoError(t, err)

	p := c.Find(catalog.Query{Search: "  TABBY "})
	require.Len(t, p.Items, 2)
	assert.Equal(t, uint64(2), p.Items[0].ID)
	assert.Equal(t, uint64(3), p.Items[1].ID)
}

func TestFindFilters(t *testing.T) {
	c := bigCatalog(t, 5)
	minted := func(id uint64) bool { return id%2 == 0 }

	avail := c.Find(catalog.Query{Filter: catalog.FilterAvailable, Minted: minted})
	assert.Equal(t, 3, avail.Total)

	done := c.Find(catalog.Query{Filter: catalog.FilterMinted, Minted: minted})
	assert.Equal(t, 2, done.Total)

	none := c.Find(catalog.Query{Filter: catalog.FilterMinted})
	assert.Zero(t, none.Total)
	assert.Empty(t, none.Items)
}

func TestCount(t *testing.T) {
	c := bigCatalog(t, 5)
	n := c.Count(func(id uint64) bool { return id <= 2 })
	assert.Equal(t, catalog.Counts{Total: 5, Minted: 2, Available: 3}, n)
}
