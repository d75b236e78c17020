package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mohsinsiddi/koneko/internal/catalog"
)

var filterCycle = []catalog.Filter{catalog.FilterAll, catalog.FilterAvailable, catalog.FilterMinted}

// Browser is the interactive catalog view: search by name, filter by local
// mint status and page through results.
type Browser struct {
	cat    *catalog.Catalog
	minted func(id uint64) bool
	query  catalog.Query
	page   catalog.Page
	counts catalog.Counts

	cursor    int
	searching bool
	input     string
	quitting  bool
}

// NewBrowser opens the catalog at q. minted may be nil.
func NewBrowser(cat *catalog.Catalog, minted func(id uint64) bool, q catalog.Query) Browser {
	if q.Filter == "" {
		q.Filter = catalog.FilterAll
	}
	q.Minted = minted
	b := Browser{cat: cat, minted: minted, query: q, counts: cat.Count(minted)}
	b.reload()
	return b
}

func (b *Browser) reload() {
	b.page = b.cat.Find(b.query)
	b.query.Page = b.page.Page
	if b.cursor >= len(b.page.Items) {
		b.cursor = max(len(b.page.Items)-1, 0)
	}
}

// Page returns the page currently shown.
func (b Browser) Page() catalog.Page { return b.page }

// Query returns the active query.
func (b Browser) Query() catalog.Query { return b.query }

func (b Browser) Init() tea.Cmd { return nil }

func (b Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return b, nil
	}
	if b.searching {
		return b.updateSearch(key)
	}

	switch key.String() {
	case "q", "ctrl+c", "esc":
		b.quitting = true
		return b, tea.Quit
	case "up", "k":
		if b.cursor > 0 {
			b.cursor--
		}
	case "down", "j":
		if b.cursor < len(b.page.Items)-1 {
			b.cursor++
		}
	case "right", "l", "n":
		if b.page.Page < b.page.TotalPages {
			b.query.Page++
			b.cursor = 0
			b.reload()
		}
	case "left", "h", "p":
		if b.query.Page > 1 {
			b.query.Page--
			b.cursor = 0
			b.reload()
		}
	case "f":
		b.query.Filter = nextFilter(b.query.Filter)
		b.query.Page = 1
		b.cursor = 0
		b.reload()
	case "/":
		b.searching = true
		b.input = b.query.Search
	}
	return b, nil
}

func (b Browser) updateSearch(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyCtrlC:
		b.quitting = true
		return b, tea.Quit
	case tea.KeyEsc:
		b.searching = false
	case tea.KeyEnter:
		b.searching = false
		b.query.Search = b.input
		b.query.Page = 1
		b.cursor = 0
		b.reload()
	case tea.KeyBackspace:
		if r := []rune(b.input); len(r) > 0 {
			b.input = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		b.input += string(key.Runes)
	}
	return b, nil
}

func nextFilter(f catalog.Filter) catalog.Filter {
	for i, c := range filterCycle {
		if c == f {
			return filterCycle[(i+1)%len(filterCycle)]
		}
	}
	return catalog.FilterAll
}

func (b Browser) View() string {
	if b.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(StyleTitle.Render("Collection") + "\n")
	sb.WriteString(fmt.Sprintf("%s  %s  %s\n\n",
		Meta(fmt.Sprintf("%d total", b.counts.Total)),
		StyleSuccess.Render(fmt.Sprintf("%d available", b.counts.Available)),
		Meta(fmt.Sprintf("%d minted", b.counts.Minted)),
	))

	tbl := NewTable([]Column{
		{Title: "ID", Width: 5, Right: true},
		{Title: "Name", Width: 24},
		{Title: "Price", Width: 10, Right: true},
		{Title: "Status", Width: 10},
	})
	for _, e := range b.page.Items {
		status := "available"
		if b.minted != nil && b.minted(e.ID) {
			status = "minted"
		}
		tbl.AddRow(Row{fmt.Sprintf("%d", e.ID), e.Name, e.Price + " ETH", status})
	}
	tbl.SelIdx = b.cursor
	if len(b.page.Items) == 0 {
		sb.WriteString(Meta("  no tokens match") + "\n")
	} else {
		sb.WriteString(tbl.Render())
	}

	sb.WriteString("\n")
	pages := max(b.page.TotalPages, 1)
	status := fmt.Sprintf("page %d/%d · filter %s", b.page.Page, pages, b.query.Filter)
	if b.query.Search != "" {
		status += fmt.Sprintf(" · search %q", b.query.Search)
	}
	sb.WriteString(Meta(status) + "\n")
	if b.searching {
		sb.WriteString(StyleWarning.Render("search: ") + b.input + "█\n")
	} else {
		sb.WriteString(Meta("[ ↑↓ ] move  [ ←→ ] page  [ / ] search  [ f ] filter  [ q ] quit") + "\n")
	}
	return sb.String()
}

// Browse runs the catalog browser until the user quits.
func Browse(b Browser, opts ...tea.ProgramOption) error {
	if _, err := tea.NewProgram(b, opts...).Run(); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	return nil
}

// RenderPage prints one catalog page without the interactive loop.
func RenderPage(b Browser) string {
	b.searching = false
	return b.View()
}
