package fetch_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bryan-buckman/skimmer/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := fetch.New(fetch.WithUserAgent("test-agent"))
	body, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestFetchRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := fetch.New()
	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *fetch.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fetch.KindStatus, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)

	// Get reports any status without failing.
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetchReadTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := fetch.New(fetch.WithTimeout(100 * time.Millisecond))
	start := time.Now()
	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, fetch.IsTimeout(err))

	var fe *fetch.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fetch.KindReadTimeout, fe.Kind)
}

func TestFetchConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := fetch.New(fetch.WithTimeout(time.Second))
	_, err = c.Fetch(context.Background(), "http://"+addr+"/feed.xml")
	require.Error(t, err)

	var fe *fetch.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fetch.KindConnection, fe.Kind)
	assert.False(t, fetch.IsTimeout(err))
}

func TestFetchMalformedURL(t *testing.T) {
	c := fetch.New()
	_, err := c.Fetch(context.Background(), "http://[::1")

	var fe *fetch.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fetch.KindRequest, fe.Kind)
}

func TestFetchCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := fetch.New(fetch.WithMaxBodyBytes(4))
	body, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))
}
