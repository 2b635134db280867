package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"learning_progress_backend/internal/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupLearners(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/learners", r.URL.Path)
		assert.Equal(t, "1,2", r.URL.Query().Get("ids"))
		assert.Equal(t, "t1", r.Header.Get("X-Tenant-ID"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []Learner{{ID: 1, Name: "Ada", Email: "ada@example.com"}},
		})
	}))
	defer srv.Close()

	c := NewClient(config.IdentityConfig{BaseURL: srv.URL, APIKey: "secret", TimeoutMS: 1000})
	got, err := c.LookupLearners(context.Background(), "t1", "o1", []uint{1, 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ada", got[1].Name)
}

func TestLookupLearnersErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		unavailable bool
	}{
		{name: "server error", status: http.StatusBadGateway, unavailable: true},
		{name: "client error", status: http.StatusBadRequest, unavailable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(config.IdentityConfig{BaseURL: srv.URL, TimeoutMS: 1000})
			_, err := c.LookupLearners(context.Background(), "t1", "o1", []uint{1})
			require.Error(t, err)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrUnavailable))
		})
	}
}

func TestLookupLearnersTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(config.IdentityConfig{BaseURL: url, TimeoutMS: 200})
	_, err := c.LookupLearners(context.Background(), "t1", "o1", []uint{1})
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestLookupLearnersEmpty(t *testing.T) {
	c := NewClient(config.IdentityConfig{BaseURL: "http://127.0.0.1:1"})
	got, err := c.LookupLearners(context.Background(), "t1", "o1", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
