package subscription

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxypulse/proxypulse/internal/shared/logger"
)

func newTestFetcher() *Fetcher {
	log := logger.NewLogger()
	return NewFetcher(NewParser(log), log)
}

func feedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAllPlainFeed(t *testing.T) {
	body := "trojan://pw@a.example.com:443#a\n\nvless://uuid@b.example.com:443#b\nssr://skipped\n"
	srv := feedServer(t, http.StatusOK, body)

	servers := newTestFetcher().FetchAll(context.Background(), []string{srv.URL})

	require.Len(t, servers, 2)
	assert.Equal(t, "a.example.com", servers[0].Address)
	assert.Equal(t, "b.example.com", servers[1].Address)
}

func TestFetchAllBase64Feed(t *testing.T) {
	plain := "trojan://pw@a.example.com:443#a\nhy2://pw@c.example.com:443#c"
	srv := feedServer(t, http.StatusOK, base64.StdEncoding.EncodeToString([]byte(plain)))

	servers := newTestFetcher().FetchAll(context.Background(), []string{srv.URL})

	require.Len(t, servers, 2)
	assert.Equal(t, "a.example.com", servers[0].Address)
	assert.Equal(t, "c.example.com", servers[1].Address)
}

func TestFetchAllRejectsHTML(t *testing.T) {
	srv := feedServer(t, http.StatusOK, "<!DOCTYPE html><html><body>captcha</body></html>")

	servers := newTestFetcher().FetchAll(context.Background(), []string{srv.URL})

	assert.Empty(t, servers)
}

func TestFetchAllFeedFailureIsolated(t *testing.T) {
	broken := feedServer(t, http.StatusInternalServerError, "boom")
	good := feedServer(t, http.StatusOK, "trojan://pw@a.example.com:443#a")

	servers := newTestFetcher().FetchAll(context.Background(),
		[]string{broken.URL, good.URL, "http://127.0.0.1:1/unreachable"})

	require.Len(t, servers, 1)
	assert.Equal(t, "a.example.com", servers[0].Address)
}

func TestFetchAllPreservesFeedOrder(t *testing.T) {
	first := feedServer(t, http.StatusOK, "trojan://pw@first.example.com:443#1")
	second := feedServer(t, http.StatusOK, "trojan://pw@second.example.com:443#2")

	servers := newTestFetcher().FetchAll(context.Background(), []string{first.URL, second.URL})

	require.Len(t, servers, 2)
	assert.Equal(t, "first.example.com", servers[0].Address)
	assert.Equal(t, "second.example.com", servers[1].Address)
}
