package database

import (
	"fmt"
	"math"
	"net/url"
	"strconv"

	"gorm.io/gorm"
)

// MetaKeys are the keys of the pagination meta object
type MetaKeys struct {
	Total           string
	PerPage         string
	CurrentPage     string
	LastPage        string
	FirstPage       string
	FirstPageURL    string
	LastPageURL     string
	NextPageURL     string
	PreviousPageURL string
}

// SnakeCaseMetaKeys is the default meta keys naming
var SnakeCaseMetaKeys = MetaKeys{
	Total:           "total",
	PerPage:         "per_page",
	CurrentPage:     "current_page",
	LastPage:        "last_page",
	FirstPage:       "first_page",
	FirstPageURL:    "first_page_url",
	LastPageURL:     "last_page_url",
	NextPageURL:     "next_page_url",
	PreviousPageURL: "previous_page_url",
}

// PageURL is one entry of GetURLsForRange
type PageURL struct {
	Page     int    `json:"page"`
	URL      string `json:"url"`
	IsActive bool   `json:"isActive"`
}

// SimplePaginator holds one page of rows and computes the page meta
type SimplePaginator[T any] struct {
	rows        []T
	total       int64
	perPage     int
	currentPage int

	baseURL  string
	qs       url.Values
	metaKeys MetaKeys
}

func NewSimplePaginator[T any](total int64, perPage, currentPage int, rows []T) *SimplePaginator[T] {
	if perPage < 1 {
		perPage = 20
	}
	if currentPage < 1 {
		currentPage = 1
	}

	return &SimplePaginator[T]{
		rows:        rows,
		total:       total,
		perPage:     perPage,
		currentPage: currentPage,
		baseURL:     "/",
		qs:          url.Values{},
		metaKeys:    SnakeCaseMetaKeys,
	}
}

func (p *SimplePaginator[T]) Rows() []T         { return p.rows }
func (p *SimplePaginator[T]) Total() int64      { return p.total }
func (p *SimplePaginator[T]) PerPage() int      { return p.perPage }
func (p *SimplePaginator[T]) CurrentPage() int  { return p.currentPage }
func (p *SimplePaginator[T]) FirstPage() int    { return 1 }
func (p *SimplePaginator[T]) IsEmpty() bool     { return len(p.rows) == 0 }
func (p *SimplePaginator[T]) HasTotal() bool    { return p.total > 0 }
func (p *SimplePaginator[T]) HasPages() bool    { return p.LastPage() != 1 }
func (p *SimplePaginator[T]) HasMorePages() bool { return p.LastPage() > p.currentPage }

// LastPage is never lower than 1, even without rows
func (p *SimplePaginator[T]) LastPage() int {
	return max(int(math.Ceil(float64(p.total)/float64(p.perPage))), 1)
}

// BaseURL sets the url the page urls are built on
func (p *SimplePaginator[T]) BaseURL(u string) *SimplePaginator[T] {
	p.baseURL = u
	return p
}

// QueryString adds query string values to the page urls
func (p *SimplePaginator[T]) QueryString(values map[string]string) *SimplePaginator[T] {
	for k, v := range values {
		p.qs.Set(k, v)
	}
	return p
}

// NamingStrategy replaces the meta keys
func (p *SimplePaginator[T]) NamingStrategy(keys MetaKeys) *SimplePaginator[T] {
	p.metaKeys = keys
	return p
}

// GetURL returns the url of page, pages below 1 point to the first page
func (p *SimplePaginator[T]) GetURL(page int) string {
	qs := url.Values{}
	for k, v := range p.qs {
		qs[k] = v
	}
	qs.Set("page", strconv.Itoa(max(page, 1)))

	return fmt.Sprintf("%s?%s", p.baseURL, qs.Encode())
}

func (p *SimplePaginator[T]) GetNextPageURL() string {
	if !p.HasMorePages() {
		return ""
	}
	return p.GetURL(p.currentPage + 1)
}

func (p *SimplePaginator[T]) GetPreviousPageURL() string {
	if p.currentPage <= 1 {
		return ""
	}
	return p.GetURL(p.currentPage - 1)
}

// GetURLsForRange returns the urls of the pages from start to end
func (p *SimplePaginator[T]) GetURLsForRange(start, end int) []PageURL {
	urls := make([]PageURL, 0, max(end-start+1, 0))
	for page := start; page <= end; page++ {
		urls = append(urls, PageURL{Page: page, URL: p.GetURL(page), IsActive: page == p.currentPage})
	}
	return urls
}

// Meta returns the pagination meta keyed by the naming strategy
func (p *SimplePaginator[T]) Meta() map[string]any {
	k := p.metaKeys

	return map[string]any{
		k.Total:           p.total,
		k.PerPage:         p.perPage,
		k.CurrentPage:     p.currentPage,
		k.LastPage:        p.LastPage(),
		k.FirstPage:       p.FirstPage(),
		k.FirstPageURL:    p.GetURL(1),
		k.LastPageURL:     p.GetURL(p.LastPage()),
		k.NextPageURL:     nullable(p.GetNextPageURL()),
		k.PreviousPageURL: nullable(p.GetPreviousPageURL()),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Paginate counts the query and loads one page of it into T
func Paginate[T any](query *gorm.DB, page, perPage int) (*SimplePaginator[T], error) {
	p := NewSimplePaginator[T](0, perPage, page, nil)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	rows := []T{}
	err := query.Session(&gorm.Session{}).
		Offset((p.currentPage - 1) * p.perPage).
		Limit(p.perPage).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	p.total = total
	p.rows = rows

	return p, nil
}
