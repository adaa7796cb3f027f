package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/comfybridge/api/internal/config"
	"github.com/comfybridge/api/internal/model"
)

// Client talks to one ComfyUI server. It carries no per-request state;
// every operation opens and releases its own transport resources, so a
// single Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	wsURL      string

	submitTimeout   time.Duration
	historyTimeout  time.Duration
	downloadTimeout time.Duration
	healthTimeout   time.Duration
	watchTimeout    time.Duration
	receiveTimeout  time.Duration
}

// NewClient creates a ComfyUI client from config. Timeouts are applied
// per operation through context deadlines rather than a shared transport
// timeout.
func NewClient(cfg *config.ComfyConfig) *Client {
	base := strings.TrimRight(cfg.URL, "/")

	ws := base
	switch {
	case strings.HasPrefix(base, "https://"):
		ws = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		ws = "ws://" + strings.TrimPrefix(base, "http://")
	}

	return &Client{
		httpClient:      &http.Client{},
		baseURL:         base,
		wsURL:           ws,
		submitTimeout:   time.Duration(cfg.SubmitTimeout) * time.Second,
		historyTimeout:  time.Duration(cfg.HistoryTimeout) * time.Second,
		downloadTimeout: time.Duration(cfg.DownloadTimeout) * time.Second,
		healthTimeout:   time.Duration(cfg.HealthTimeout) * time.Second,
		watchTimeout:    time.Duration(cfg.WatchTimeout) * time.Second,
		receiveTimeout:  time.Duration(cfg.ReceiveTimeout) * time.Second,
	}
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// QueuePrompt submits a mutated workflow and returns the prompt id the
// upstream assigned to it.
func (c *Client) QueuePrompt(ctx context.Context, graph map[string]interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	body, err := json.Marshal(promptRequest{Prompt: graph})
	if err != nil {
		return "", model.NewInternalError("failed to encode workflow", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", model.NewInternalError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logrus.Infof("[ComfyUI] → POST %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logrus.Errorf("[ComfyUI] ✗ POST %s — request failed: %v", req.URL.String(), err)
		return "", model.NewServiceUnavailableError(fmt.Sprintf("Failed to connect to ComfyUI at %s", c.baseURL), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.NewServiceUnavailableError(fmt.Sprintf("Failed to connect to ComfyUI at %s", c.baseURL), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.Errorf("[ComfyUI] ← %d POST %s — %s", resp.StatusCode, req.URL.String(), string(respBody))
		return "", model.NewServiceUnavailableError(fmt.Sprintf("Failed to connect to ComfyUI at %s: status %d", c.baseURL, resp.StatusCode), nil)
	}

	var result PromptResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", model.NewInternalError("failed to decode queue response", err)
	}
	if result.PromptID == "" {
		return "", model.NewInternalError("No prompt_id returned from ComfyUI", nil)
	}

	logrus.Infof("[ComfyUI] ← queued prompt %s", result.PromptID)
	return result.PromptID, nil
}

// GetHistory fetches the recorded execution for a prompt id. The upstream
// returns an empty object while the id is unknown, so absence is decided by
// the caller, not here.
func (c *Client) GetHistory(ctx context.Context, promptID string) (History, error) {
	ctx, cancel := context.WithTimeout(ctx, c.historyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, model.NewInternalError("failed to create request", err)
	}

	logrus.Infof("[ComfyUI] → GET %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logrus.Errorf("[ComfyUI] ✗ GET %s — request failed: %v", req.URL.String(), err)
		return nil, model.NewInternalError("Failed to get history", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewInternalError(fmt.Sprintf("Failed to get history: status %d", resp.StatusCode), nil)
	}

	var history History
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, model.NewInternalError("Failed to get history", err)
	}
	return history, nil
}

// DownloadImage fetches one artifact's bytes through the upstream view
// endpoint.
func (c *Client) DownloadImage(ctx context.Context, ref ImageRef) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	folderType := ref.Type
	if folderType == "" {
		folderType = "output"
	}

	params := url.Values{}
	params.Set("filename", ref.Filename)
	params.Set("subfolder", ref.Subfolder)
	params.Set("type", folderType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+params.Encode(), nil)
	if err != nil {
		return nil, model.NewInternalError("failed to create request", err)
	}

	logrus.Infof("[ComfyUI] → GET %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logrus.Errorf("[ComfyUI] ✗ GET %s — request failed: %v", req.URL.String(), err)
		return nil, model.NewInternalError("Failed to download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewInternalError(fmt.Sprintf("Failed to download image: status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewInternalError("Failed to download image", err)
	}
	return data, nil
}

// HealthCheck probes the upstream status endpoint. Returned errors are
// plain; the liveness handler reports them without raising.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check returned status: %d", resp.StatusCode)
	}
	return nil
}
