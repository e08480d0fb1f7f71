package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplePaginator(t *testing.T) {
	tests := []struct {
		name         string
		total        int64
		perPage      int
		page         int
		lastPage     int
		hasPages     bool
		hasMorePages bool
	}{
		{"no rows", 0, 10, 1, 1, false, false},
		{"single page", 7, 10, 1, 1, false, false},
		{"first of many", 25, 10, 1, 3, true, true},
		{"last page", 25, 10, 3, 3, true, false},
		{"invalid page", 25, 10, 0, 3, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewSimplePaginator[int](tt.total, tt.perPage, tt.page, nil)

			assert.Equal(t, tt.lastPage, p.LastPage())
			assert.Equal(t, tt.hasPages, p.HasPages())
			assert.Equal(t, tt.hasMorePages, p.HasMorePages())
			assert.Equal(t, 1, p.FirstPage())
			assert.True(t, p.IsEmpty())
		})
	}
}

func TestSimplePaginatorURLs(t *testing.T) {
	p := NewSimplePaginator(25, 10, 2, []string{"a"}).
		BaseURL("/posts").
		QueryString(map[string]string{"sort": "desc"})

	assert.Equal(t, "/posts?page=3&sort=desc", p.GetURL(3))
	assert.Equal(t, "/posts?page=1&sort=desc", p.GetURL(-1))
	assert.Equal(t, "/posts?page=3&sort=desc", p.GetNextPageURL())
	assert.Equal(t, "/posts?page=1&sort=desc", p.GetPreviousPageURL())

	urls := p.GetURLsForRange(1, 3)
	require.Len(t, urls, 3)
	assert.True(t, urls[1].IsActive)
	assert.False(t, urls[0].IsActive)

	meta := p.Meta()
	assert.Equal(t, int64(25), meta["total"])
	assert.Equal(t, 3, meta["last_page"])
	assert.Equal(t, "/posts?page=3&sort=desc", meta["next_page_url"])

	meta = NewSimplePaginator[string](5, 10, 1, nil).
		NamingStrategy(MetaKeys{Total: "total", NextPageURL: "nextPageUrl"}).
		Meta()
	assert.Nil(t, meta["nextPageUrl"])
}

func TestPaginate(t *testing.T) {
	db := newTestDatabase(t, Options{})

	conn, err := db.Connection()
	require.NoError(t, err)

	for i := 1; i <= 12; i++ {
		require.NoError(t, conn.Create(&post{Title: fmt.Sprintf("post %02d", i)}).Error)
	}

	query := conn.WithContext(context.Background()).Model(&post{}).Order("id")

	page, err := Paginate[post](query, 2, 5)
	require.NoError(t, err)

	assert.Equal(t, int64(12), page.Total())
	assert.Equal(t, 3, page.LastPage())
	require.Len(t, page.Rows(), 5)
	assert.Equal(t, "post 06", page.Rows()[0].Title)

	page, err = Paginate[post](query, 3, 5)
	require.NoError(t, err)
	assert.Len(t, page.Rows(), 2)
	assert.False(t, page.HasMorePages())
}
