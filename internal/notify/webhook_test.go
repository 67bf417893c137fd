package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_Trigger(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	w := NewWebhook(ts.URL, ts.Client())
	err := w.Trigger(context.Background(), "messenger-email-verify", "S1", map[string]any{"token": "t1"}, Options{
		Messengers: []Messenger{{ID: "m1", Type: "email", Value: "alice@example.com"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "messenger-email-verify", got["id"])
	assert.Equal(t, "S1", got["sub"])
	assert.Equal(t, map[string]any{"token": "t1"}, got["data"])
	assert.Equal(t, []any{map[string]any{"id": "m1", "type": "email", "value": "alice@example.com"}}, got["messengers"])
	assert.NotContains(t, got, "types")
}

func TestWebhook_FailureIsReturned(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	err := NewWebhook(ts.URL, nil).Trigger(context.Background(), "x", "S1", nil, Options{})
	require.Error(t, err)
}
