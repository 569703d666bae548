package openai

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
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
	defaultModel   = "gpt-4-vision-preview"
	maxTokens      = 500
)

var ErrEmptyPrompt = errors.New("openai returned no usable prompt text")

// Client is a minimal OpenAI chat-completions client used to turn a pet
// photo plus a dance name into a video-generation prompt.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClient creates an OpenAI client
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
		model:   defaultModel,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateDancePrompt asks the vision model to describe the pet in the image
// and produce a prompt for a video of that exact pet performing the dance.
func (c *Client) GenerateDancePrompt(ctx context.Context, petImageURL, danceName string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai: api key not configured")
	}

	instruction := fmt.Sprintf(`You are analyzing a pet image. Please describe the pet in detail, including:
1. Breed or type of animal (dog, cat, etc.)
2. Color and markings
3. Physical characteristics (size, fur length, distinctive features)
4. Facial features
5. Any unique characteristics

Then, create a detailed prompt for generating a video of this exact pet doing the %s dance. The prompt must ensure the pet in the video looks exactly like the pet in the source image - same breed, colors, markings, and features. The pet should be performing the %s dance moves.

Return only the prompt, nothing else. The prompt should be descriptive and focus on maintaining the pet's exact appearance while performing the dance.`, danceName, danceName)

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: instruction},
					{Type: "image_url", ImageURL: &imageURL{URL: petImageURL}},
				},
			},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("openai: http error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}

	if len(out.Choices) == 0 {
		return "", ErrEmptyPrompt
	}
	prompt := strings.TrimSpace(out.Choices[0].Message.Content)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	return prompt, nil
}
