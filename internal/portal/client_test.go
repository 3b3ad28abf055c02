package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/pkg/config"
)

func TestClientNotifyUpload(t *testing.T) {
	var received UploadNotice
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/photos/sync", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(config.PortalConfig{Enabled: true, BaseURL: srv.URL + "/"}, zap.NewNop())

	notice := UploadNotice{
		PhotoID:    "p1",
		SchoolID:   "school-1",
		MealType:   "lunch",
		PhotoURL:   "https://cdn.example.com/p1.jpg",
		UploadedBy: "warden-1",
		Timestamp:  time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC),
	}
	require.NoError(t, client.NotifyUpload(context.Background(), notice))
	assert.Equal(t, notice, received)
}

func TestClientDisabledIsANoop(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	client := NewClient(config.PortalConfig{Enabled: false, BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, client.NotifyUpload(context.Background(), UploadNotice{PhotoID: "p1"}))
	assert.Zero(t, calls)

	// enabled but no base URL is treated the same way
	client = NewClient(config.PortalConfig{Enabled: true}, zap.NewNop())
	require.NoError(t, client.NotifyUpload(context.Background(), UploadNotice{PhotoID: "p1"}))
}

func TestClientReportsRejectedSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(config.PortalConfig{Enabled: true, BaseURL: srv.URL}, zap.NewNop())
	err := client.NotifyUpload(context.Background(), UploadNotice{PhotoID: "p1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
