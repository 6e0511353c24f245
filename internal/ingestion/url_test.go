package ingestion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/context-crystal/internal/fetch"
	"github.com/jonathan/context-crystal/internal/types"
)

const dataRolePage = `<html><body><div data-role="user">Hi there</div><div data-role="assistant">Hello</div></body></html>`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFromURL_InvalidURL(t *testing.T) {
	for _, u := range []string{"not-a-url", "ftp://example.com/x", ""} {
		_, err := FromURL(context.Background(), u, URLOptions{})
		assert.True(t, errors.Is(err, ErrInvalidURL), u)
	}
}

func TestFromURL_Success(t *testing.T) {
	server := serve(t, http.StatusOK, dataRolePage)

	res, err := FromURL(context.Background(), server.URL+"/share/xyz", URLOptions{})
	require.NoError(t, err)
	require.Len(t, res.Conversations, 1)

	conv := res.Conversations[0]
	assert.Equal(t, "manual_xyz", conv.ID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, types.RoleUser, conv.Messages[0].Role)

	assert.Equal(t, FormatHTML, res.Metadata.Format)
	assert.Equal(t, string(fetch.PlatformUnknown), res.Metadata.Platform)
	assert.Equal(t, 2, res.Metadata.Messages)
	assert.Equal(t, server.URL+"/share/xyz", res.Metadata.URL)
}

func TestFromURL_HTTPError(t *testing.T) {
	server := serve(t, http.StatusNotFound, "")

	_, err := FromURL(context.Background(), server.URL, URLOptions{})
	assert.True(t, errors.Is(err, ErrHTTPRequestFailed))
}

func TestFromURL_BrowserFallback(t *testing.T) {
	server := serve(t, http.StatusOK, `<html><body><div id="root"></div></body></html>`)

	_, err := FromURL(context.Background(), server.URL, URLOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentExtractionFailed))

	var waited string
	res, err := FromURL(context.Background(), server.URL, URLOptions{
		UseBrowser: true,
		render: func(_ context.Context, _ string, wait string, _ bool) (string, error) {
			waited = wait
			return dataRolePage, nil
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Conversations[0].Messages, 2)
	assert.Equal(t, WaitSelector(fetch.PlatformUnknown), waited)
}

func TestFromURL_BrowserFailure(t *testing.T) {
	server := serve(t, http.StatusOK, `<html><body></body></html>`)

	_, err := FromURL(context.Background(), server.URL, URLOptions{
		UseBrowser: true,
		render: func(context.Context, string, string, bool) (string, error) {
			return "", errors.New("chrome not installed")
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentExtractionFailed))
	assert.Contains(t, err.Error(), "chrome not installed")
}

func TestFromURL_UsesFetcher(t *testing.T) {
	server := serve(t, http.StatusOK, dataRolePage)
	fetcher := fetch.NewCachedFetcher(nil)

	_, err := FromURL(context.Background(), server.URL, URLOptions{Fetcher: fetcher})
	require.NoError(t, err)

	cached, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
}
