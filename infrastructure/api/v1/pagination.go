package v1

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/helixml/filegraph/infrastructure/api/jsonapi"
)

// Page sizes for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// page is a 1-indexed window over a listing.
type page struct {
	number int
	size   int
}

// parsePage reads page and page_size. Non-numeric values are 400s; values
// out of range are clamped.
func parsePage(req *http.Request) (page, error) {
	number, err := queryInt(req, "page", 1)
	if err != nil {
		return page{}, err
	}
	size, err := queryInt(req, "page_size", DefaultPageSize)
	if err != nil {
		return page{}, err
	}
	return page{number: max(number, 1), size: min(max(size, 1), MaxPageSize)}, nil
}

func (p page) limit() int  { return p.size }
func (p page) offset() int { return (p.number - 1) * p.size }

// meta is for listings that are not counted.
func (p page) meta() *jsonapi.Meta {
	return &jsonapi.Meta{"page": p.number, "page_size": p.size}
}

func (p page) lastPage(total int64) int {
	return int((total + int64(p.size) - 1) / int64(p.size))
}

func (p page) countedMeta(total int64) *jsonapi.Meta {
	m := p.meta()
	(*m)["total_count"] = total
	(*m)["total_pages"] = p.lastPage(total)
	return m
}

// links keeps every other query parameter of req, so filters survive paging.
func (p page) links(req *http.Request, total int64) *jsonapi.Links {
	at := func(n int) string {
		q := req.URL.Query()
		q.Set("page", strconv.Itoa(n))
		q.Set("page_size", strconv.Itoa(p.size))
		return (&url.URL{Path: req.URL.Path, RawQuery: q.Encode()}).String()
	}

	last := p.lastPage(total)
	links := &jsonapi.Links{Self: at(p.number), First: at(1)}
	if last > 0 {
		links.Last = at(last)
	}
	if p.number > 1 {
		links.Prev = at(p.number - 1)
	}
	if p.number < last {
		links.Next = at(p.number + 1)
	}
	return links
}
