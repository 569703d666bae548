package runway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.runwayml.com/v1"
	defaultTimeout = 30 * time.Second

	videoDurationSeconds = 8
	videoAspectRatio     = "16:9"
)

var ErrNoTaskID = errors.New("runway: no task ID returned")

// Client talks to the RunwayML image-to-video API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a Runway client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// GenerationRequest describes an image-to-video render job
type GenerationRequest struct {
	ImageURL string
	Prompt   string
	Model    string
}

// Task is the normalized view of a Runway render job
type Task struct {
	ID     string
	Status Status
	Output []string
	Error  string
}

type createRequest struct {
	ImageURL    string `json:"image_url"`
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	Duration    int    `json:"duration"`
	AspectRatio string `json:"aspect_ratio"`
}

type createResponse struct {
	TaskID string `json:"task_id"`
	ID     string `json:"id"`
	Task   *struct {
		ID string `json:"id"`
	} `json:"task"`
}

type taskResponse struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Output   []string `json:"output"`
	VideoURL string   `json:"video_url"`
	Error    string   `json:"error"`
	Message  string   `json:"message"`
}

// CreateGeneration starts an asynchronous render job and returns its task ID
func (c *Client) CreateGeneration(ctx context.Context, req GenerationRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("runway: api key not configured")
	}

	payload, err := json.Marshal(createRequest{
		ImageURL:    req.ImageURL,
		Prompt:      req.Prompt,
		Model:       req.Model,
		Duration:    videoDurationSeconds,
		AspectRatio: videoAspectRatio,
	})
	if err != nil {
		return "", fmt.Errorf("runway: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/image-to-video", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("runway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("runway: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("runway: http error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("runway: decode response: %w", err)
	}

	// Runway returns either task_id or id depending on the endpoint version
	taskID := out.TaskID
	if taskID == "" {
		taskID = out.ID
	}
	if taskID == "" && out.Task != nil {
		taskID = out.Task.ID
	}
	if taskID == "" {
		return "", ErrNoTaskID
	}

	return taskID, nil
}

// GetTask queries the status of a render job
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("runway: api key not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("runway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runway: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("runway: http error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("runway: decode response: %w", err)
	}

	task := &Task{
		ID:     out.ID,
		Status: NormalizeStatus(out.Status),
		Output: out.Output,
	}
	if task.ID == "" {
		task.ID = taskID
	}
	if len(task.Output) == 0 && out.VideoURL != "" {
		task.Output = []string{out.VideoURL}
	}
	task.Error = out.Error
	if task.Error == "" {
		task.Error = out.Message
	}

	return task, nil
}

// DownloadOutput fetches a finished artifact. The caller must close the body.
func (c *Client) DownloadOutput(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("runway: build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runway: download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("runway: download http error: status=%d", resp.StatusCode)
	}

	return resp.Body, nil
}
