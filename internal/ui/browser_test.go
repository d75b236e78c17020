package ui

import (
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/koneko/internal/catalog"
)

func testCatalog(t *testing.T, n int) *catalog.Catalog {
	t.Helper()
	entries := make([]catalog.TokenMetadataEntry, n)
	for i := range entries {
		id := uint64(i + 1)
		name := fmt.Sprintf("Cat %d", id)
		if id == 7 {
			name = "Mochi"
		}
		entries[i] = catalog.TokenMetadataEntry{ID: id, Filename: fmt.Sprintf("%d.png", id), Name: name, Price: "0.002"}
	}
	c, err := catalog.New(entries)
	require.NoError(t, err)
	return c
}

func evenMinted(id uint64) bool { return id%2 == 0 }

func typeText(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

// ---------------------------------------------------------------------------
// paging
// ---------------------------------------------------------------------------

func TestBrowserPages(t *testing.T) {
	b := NewBrowser(testCatalog(t, 40), evenMinted, catalog.Query{})
	assert.Equal(t, 1, b.Page().Page)
	assert.Equal(t, 3, b.Page().TotalPages)
	assert.Len(t, b.Page().Items, catalog.DefaultPerPage)

	m := press(b, keys("n"), keys("n"), keys("n"))
	assert.Equal(t, 3, m.(Browser).Page().Page, "stops at last page")
	assert.Len(t, m.(Browser).Page().Items, 4)

	m = press(m, keys("p"), tea.KeyMsg{Type: tea.KeyLeft}, keys("p"))
	assert.Equal(t, 1, m.(Browser).Page().Page)
}

func TestBrowserStartPageClamped(t *testing.T) {
	b := NewBrowser(testCatalog(t, 20), nil, catalog.Query{Page: 9})
	assert.Equal(t, 2, b.Page().Page)
	assert.Equal(t, 2, b.Query().Page)
}

// ---------------------------------------------------------------------------
// filter / search
// ---------------------------------------------------------------------------

func TestBrowserCyclesFilter(t *testing.T) {
	b := NewBrowser(testCatalog(t, 10), evenMinted, catalog.Query{})

	m := press(b, keys("f"))
	assert.Equal(t, catalog.FilterAvailable, m.(Browser).Query().Filter)
	for _, e := range m.(Browser).Page().Items {
		assert.False(t, evenMinted(e.ID))
	}

	m = press(m, keys("f"))
	assert.Equal(t, catalog.FilterMinted, m.(Browser).Query().Filter)
	assert.Equal(t, 5, m.(Browser).Page().Total)

	m = press(m, keys("f"))
	assert.Equal(t, catalog.FilterAll, m.(Browser).Query().Filter)
}

func TestBrowserSearch(t *testing.T) {
	b := NewBrowser(testCatalog(t, 40), nil, catalog.Query{Page: 2})

	m := press(b, keys("/"))
	assert.True(t, m.(Browser).searching)
	m = typeText(m, "mochx")
	m = press(m, tea.KeyMsg{Type: tea.KeyBackspace})
	m = typeText(m, "I")
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})

	got := m.(Browser)
	assert.False(t, got.searching)
	assert.Equal(t, "mochI", got.Query().Search)
	assert.Equal(t, 1, got.Page().Page)
	require.Len(t, got.Page().Items, 1)
	assert.Equal(t, uint64(7), got.Page().Items[0].ID)
}

func TestBrowserSearchEscKeepsQuery(t *testing.T) {
	b := NewBrowser(testCatalog(t, 10), nil, catalog.Query{Search: "cat"})
	m := press(b, keys("/"))
	m = typeText(m, "zzz")
	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, "cat", m.(Browser).Query().Search)
	assert.False(t, m.(Browser).searching)
}

// ---------------------------------------------------------------------------
// view
// ---------------------------------------------------------------------------

func TestBrowserView(t *testing.T) {
	b := NewBrowser(testCatalog(t, 10), evenMinted, catalog.Query{})
	view := RenderPage(b)
	assert.Contains(t, view, "10 total")
	assert.Contains(t, view, "5 available")
	assert.Contains(t, view, "5 minted")
	assert.Contains(t, view, "Mochi")
	assert.Contains(t, view, "0.002 ETH")
	assert.Contains(t, view, "page 1/1")
}

func TestBrowserViewNoMatches(t *testing.T) {
	b := NewBrowser(testCatalog(t, 3), nil, catalog.Query{Search: "nobody"})
	assert.Contains(t, RenderPage(b), "no tokens match")
	assert.Contains(t, RenderPage(b), "page 1/1")
}

func TestBrowserQuit(t *testing.T) {
	m, cmd := NewBrowser(testCatalog(t, 3), nil, catalog.Query{}).Update(keys("q"))
	assert.NotNil(t, cmd)
	assert.Empty(t, m.View())
}
