package types

const ResultsPerPage = 10

type SearchPage struct {
	CurrentPage  int     `json:"currentPage"`
	HasNextPage  bool    `json:"hasNextPage"`
	TotalResults int     `json:"totalResults,omitempty"`
	Results      []Anime `json:"results"`
}

// TotalPages is ceil(TotalResults / ResultsPerPage). Upstream omits
// totalResults on some listings, then the known pages are counted instead.
func (p *SearchPage) TotalPages() int {
	if p.TotalResults > 0 {
		return (p.TotalResults + ResultsPerPage - 1) / ResultsPerPage
	}
	current := p.CurrentPage
	if current < 1 {
		current = 1
	}
	if p.HasNextPage {
		return current + 1
	}
	return current
}

func (p *SearchPage) CanNext() bool {
	if p.TotalResults > 0 {
		return p.CurrentPage < p.TotalPages()
	}
	return p.HasNextPage
}

func (p *SearchPage) CanPrev() bool {
	return p.CurrentPage > 1
}
