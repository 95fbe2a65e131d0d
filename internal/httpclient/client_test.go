package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
)

func TestSendPostsJSON(t *testing.T) {
	var gotBody string
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Timeout: time.Second}, logger.NewNoopLogger())
	resp, err := client.Send(context.Background(), &Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"X-Signature": "abc"},
		Body:    []byte(`{"event":"credit.balance.low"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, `{"event":"credit.balance.low"}`, gotBody)
	assert.Equal(t, "abc", gotHeader)
}

func TestSendReturnsHTTPErrorOnClientFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Timeout: time.Second}, logger.NewNoopLogger())
	_, err := client.Send(context.Background(), &Request{Method: http.MethodPost, URL: srv.URL})
	require.Error(t, err)

	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewError(tt.status, nil).Retryable(), http.StatusText(tt.status))
	}

	err := NewError(http.StatusBadGateway, make([]byte, 2048))
	assert.Len(t, err.Response, maxErrorBody)
	assert.True(t, ierr.IsHTTPClient(err))
}
