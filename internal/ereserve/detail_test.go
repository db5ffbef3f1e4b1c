package ereserve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBookTitle(t *testing.T) {
	srv := serveHTML(t, `<html><head><title>数据结构 - 教参服务平台</title></head></html>`)

	title, err := BookTitle(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "数据结构", title)
}

func TestBookTitleNoSiteSuffix(t *testing.T) {
	srv := serveHTML(t, `<html><head><title>Plain Title</title></head></html>`)

	title, err := BookTitle(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Plain Title", title)
}

func TestBookTitleMissing(t *testing.T) {
	srv := serveHTML(t, `<html><head></head><body></body></html>`)

	_, err := BookTitle(context.Background(), srv.Client(), srv.URL)
	assert.Error(t, err)
}
