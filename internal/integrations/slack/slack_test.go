package slack

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL).Post(context.Background(), "*Job 1042* is complete"))
	assert.Equal(t, "*Job 1042* is complete", got.Text)
	require.Len(t, got.Blocks, 1)
	assert.Equal(t, "mrkdwn", got.Blocks[0].Text.Type)
}

func TestPost_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Post(context.Background(), "hi")
	assert.ErrorContains(t, err, "slack returned 400")

	assert.ErrorIs(t, NewClient("").Post(context.Background(), "hi"), ErrNotConfigured)
}
