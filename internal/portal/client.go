package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/pkg/config"
)

// UploadNotice mirrors the payload the departmental web portal expects for
// each new meal photo.
type UploadNotice struct {
	PhotoID    string    `json:"photo_id"`
	SchoolID   string    `json:"school_id"`
	MealType   string    `json:"meal_type"`
	PhotoURL   string    `json:"photo_url"`
	UploadedBy string    `json:"uploaded_by"`
	Timestamp  time.Time `json:"timestamp"`
}

// Client forwards upload notices to the web portal. All failures are logged
// and swallowed: the portal is an optional mirror and must never affect the
// upload path.
type Client struct {
	baseURL string
	enabled bool
	client  *http.Client
	logger  *zap.Logger
}

// NewClient builds a portal client from configuration.
func NewClient(cfg config.PortalConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		enabled: cfg.Enabled && cfg.BaseURL != "",
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// NotifyUpload posts the notice to the portal. Best effort: the returned
// error is informational and callers may ignore it.
func (c *Client) NotifyUpload(ctx context.Context, notice UploadNotice) error {
	if !c.enabled {
		return nil
	}

	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal portal notice: %w", err)
	}

	url := c.baseURL + "/api/photos/sync"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build portal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("portal sync failed", zap.String("photo_id", notice.PhotoID), zap.Error(err))
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("portal sync status %d", resp.StatusCode)
		c.logger.Warn("portal sync rejected", zap.String("photo_id", notice.PhotoID), zap.Int("status", resp.StatusCode))
		return err
	}

	c.logger.Debug("portal sync ok", zap.String("photo_id", notice.PhotoID))
	return nil
}
