package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPaginationDefaults(t *testing.T) {
	pg := NewPagination(0, 0, 45)
	require.Equal(t, 1, pg.Page)
	require.Equal(t, 20, pg.PerPage)
	require.Equal(t, 45, pg.Total)
	require.Equal(t, 3, pg.TotalPages)

	require.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
}

func TestPageParams(t *testing.T) {
	page, perPage := PageParams(url.Values{"page": {"3"}, "perPage": {"5"}})
	require.Equal(t, 3, page)
	require.Equal(t, 5, perPage)

	page, perPage = PageParams(url.Values{"page": {"abc"}})
	require.Equal(t, 0, page)
	require.Equal(t, 0, perPage)
}

func TestPaginationWindow(t *testing.T) {
	pg := NewPagination(2, 10, 25)
	start, end := pg.Window(25)
	require.Equal(t, 10, start)
	require.Equal(t, 20, end)

	// Last partial page.
	start, end = NewPagination(3, 10, 25).Window(25)
	require.Equal(t, 20, start)
	require.Equal(t, 25, end)

	// Past the end.
	start, end = NewPagination(9, 10, 25).Window(25)
	require.Equal(t, 25, start)
	require.Equal(t, 25, end)
}
