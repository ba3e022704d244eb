package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, pageSize int) *Client {
	c := NewClient(&cfg.ERPCfg{
		BaseURL:    url,
		Token:      "secret",
		PageSize:   pageSize,
		MaxRetries: 3,
		Timeout:    5 * time.Second,
	}, logger.NewNop())
	c.backoffBase = time.Millisecond
	c.backoffMax = 5 * time.Millisecond
	return c
}

func writePage(w http.ResponseWriter, size int, rows ...productRow) {
	page := productPage{Rows: rows}
	page.Meta.Size = size
	_ = json.NewEncoder(w).Encode(page)
}

func TestArticleCodes_Paging(t *testing.T) {
	all := []productRow{
		{Article: "1", Code: "C-1"},
		{Article: "2", Code: "C-2"},
		{Article: "", Code: "no-article"},
		{Article: "4", Code: ""},
		{Article: "5", Code: "C-5"},
	}

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/entity/product", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		writePage(w, len(all), all[offset:end]...)
	}))
	defer srv.Close()

	codes, err := newTestClient(srv.URL, 2).ArticleCodes(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"1": "C-1", "2": "C-2", "5": "C-5"}, codes)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestArticleCodes_PagingWithoutMetaSize(t *testing.T) {
	all := []productRow{
		{Article: "1", Code: "C-1"},
		{Article: "2", Code: "C-2"},
		{Article: "3", Code: "C-3"},
		{Article: "4", Code: "C-4"},
		{Article: "5", Code: "C-5"},
	}

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rows": all[offset:end]})
	}))
	defer srv.Close()

	codes, err := newTestClient(srv.URL, 2).ArticleCodes(context.Background())
	require.NoError(t, err)

	assert.Len(t, codes, len(all), "scan continues until a short page")
	assert.Equal(t, "C-5", codes["5"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestArticleCodes_RetriesThrottling(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(w, 1, productRow{Article: "7", Code: "C-7"})
	}))
	defer srv.Close()

	codes, err := newTestClient(srv.URL, 10).ArticleCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C-7", codes["7"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestArticleCodes_Failures(t *testing.T) {
	t.Run("retries exhausted", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL, 10).ArticleCodes(context.Background())
		assert.ErrorIs(t, err, e.ErrUpstreamUnavailable)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("unauthorized is not retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL, 10).ArticleCodes(context.Background())
		assert.ErrorIs(t, err, e.ErrUpstreamUnavailable)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestArticleCodes_NotConfigured(t *testing.T) {
	codes, err := newTestClient("", 10).ArticleCodes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, codes)
}
