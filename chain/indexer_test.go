package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPage(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/token-transfers", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))
		gotQuery = map[string]string{
			"wallet":     r.URL.Query().Get("wallet"),
			"from_block": r.URL.Query().Get("from_block"),
			"sort":       r.URL.Query().Get("sort"),
			"cursor":     r.URL.Query().Get("cursor"),
		}
		_ = json.NewEncoder(w).Encode(TransferPage{
			Transfers: []TransferEvent{
				{TxHash: "0xabc", BlockNumber: 120, RawValue: "1000000"},
			},
			NextCursor: "cursor-2",
		})
	}))
	defer server.Close()

	client := NewHTTPIndexerClient(server.URL, "secret", 100)
	page, err := client.FetchPage(context.Background(), "0xwallet", "0xtoken", 100, "cursor-1", 50)
	require.NoError(t, err)
	require.Len(t, page.Transfers, 1)
	assert.Equal(t, "0xabc", page.Transfers[0].TxHash)
	assert.Equal(t, "cursor-2", page.NextCursor)

	assert.Equal(t, "0xwallet", gotQuery["wallet"])
	assert.Equal(t, "100", gotQuery["from_block"])
	assert.Equal(t, "asc", gotQuery["sort"])
	assert.Equal(t, "cursor-1", gotQuery["cursor"])
}

func TestFetchPageRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPIndexerClient(server.URL, "", 100)
	_, err := client.FetchPage(context.Background(), "0xwallet", "0xtoken", 0, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestFetchPageServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPIndexerClient(server.URL, "", 100)
	_, err := client.FetchPage(context.Background(), "0xwallet", "0xtoken", 0, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
