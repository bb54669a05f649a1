package workerclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cdpfleet/cdpfleet/internal/workerclient"
)

func hostOf(url string) string {
	return strings.TrimPrefix(url, "http://")
}

func TestNewBrowser_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/browser", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(workerclient.NewBrowserResponse{BrowserID: "guid-1", Port: 9222})
	}))
	defer srv.Close()

	c := workerclient.New()
	res, err := c.NewBrowser(context.Background(), hostOf(srv.URL), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "guid-1", res.BrowserID)
	require.Equal(t, 9222, res.Port)
}

func TestNewBrowser_ErrorStatusIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := workerclient.New()
	_, err := c.NewBrowser(context.Background(), hostOf(srv.URL), "sess-1")
	require.Error(t, err)
}

func TestDeleteBrowser_TreatsNotFoundAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := workerclient.New()
	require.NoError(t, c.DeleteBrowser(context.Background(), hostOf(srv.URL), "sess-1"))
}

func TestDeleteBrowser_RetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := workerclient.New()
	require.NoError(t, c.DeleteBrowser(context.Background(), hostOf(srv.URL), "sess-1"))
	require.Equal(t, int32(3), attempts.Load())
}

func TestDeleteBrowser_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := workerclient.New()
	err := c.DeleteBrowser(context.Background(), hostOf(srv.URL), "sess-1")
	require.Error(t, err)
	require.Equal(t, int32(3), attempts.Load())
}
