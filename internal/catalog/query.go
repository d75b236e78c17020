package catalog

import "strings"

// DefaultPerPage is the browse page size.
const DefaultPerPage = 18

// Filter selects entries by local mint status.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterAvailable Filter = "available"
	FilterMinted    Filter = "minted"
)

// Query narrows and pages the catalog. Minted reports whether an id was
// minted locally; it may be nil when Filter is FilterAll.
type Query struct {
	Search  string
	Filter  Filter
	Minted  func(id uint64) bool
	Page    int // 1-based
	PerPage int
}

// Page is one page of results.
type Page struct {
	Items      []TokenMetadataEntry
	Total      int // matches across all pages
	Page       int
	TotalPages int
}

// Counts summarises the catalog against the minted set.
type Counts struct {
	Total     int
	Minted    int
	Available int
}

// Find applies the filter, then a case-insensitive name search, then
// pagination. Out-of-range pages are clamped.
func (c *Catalog) Find(q Query) Page {
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	var matched []TokenMetadataEntry
	for _, e := range c.entries {
		if !q.keep(e.ID) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Name), needle) {
			continue
		}
		matched = append(matched, e)
	}

	pages := (len(matched) + perPage - 1) / perPage
	page := q.Page
	if page < 1 {
		page = 1
	}
	if pages > 0 && page > pages {
		page = pages
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	return Page{
		Items:      matched[start:end],
		Total:      len(matched),
		Page:       page,
		TotalPages: pages,
	}
}

func (q Query) keep(id uint64) bool {
	if q.Minted == nil {
		return q.Filter != FilterMinted
	}
	switch q.Filter {
	case FilterAvailable:
		return !q.Minted(id)
	case FilterMinted:
		return q.Minted(id)
	default:
		return true
	}
}

// Count reports totals given the minted predicate.
func (c *Catalog) Count(minted func(id uint64) bool) Counts {
	n := Counts{Total: len(c.entries)}
	if minted != nil {
		for _, e := range c.entries {
			if minted(e.ID) {
				n.Minted++
			}
		}
	}
	n.Available = n.Total - n.Minted
	return n
}
