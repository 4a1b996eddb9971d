package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqClient calls Groq's OpenAI-compatible chat completions endpoint.
type GroqClient struct {
	baseURL    string
	model      string
	keys       *KeyRing
	httpClient *http.Client
}

func NewGroqClient(baseURL, model string, keys *KeyRing) (*GroqClient, error) {
	if keys == nil || keys.Len() == 0 {
		return nil, errors.New("groq: at least one API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	return &GroqClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		keys:    keys,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

func (c *GroqClient) Model() string { return c.model }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type apiError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends one chat completion request. Transient failures come back
// as *RetryableError and token-limit rejections as *ContextLengthError.
func (c *GroqClient) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.keys.Next())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("groq api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp, respBody)
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("empty response from groq")
	}
	model := out.Model
	if model == "" {
		model = c.model
	}
	return &Response{
		Text:  strings.TrimSpace(out.Choices[0].Message.Content),
		Model: model,
		Usage: out.Usage,
	}, nil
}

// Close releases resources.
func (c *GroqClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func classify(resp *http.Response, body []byte) error {
	msg := string(body)
	var ae apiError
	code := ""
	if json.Unmarshal(body, &ae) == nil && ae.Error != nil {
		msg = ae.Error.Message
		code = ae.Error.Code
	}

	status := resp.StatusCode
	switch {
	case code == "context_length_exceeded",
		status == http.StatusRequestEntityTooLarge,
		status == http.StatusBadRequest && looksLikeContextLength(msg):
		return parseContextLength(msg)
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return &RetryableError{
			StatusCode: status,
			Message:    msg,
			After:      retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return fmt.Errorf("groq api status %d: %s", status, truncate(msg, 500))
}

func looksLikeContextLength(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "context length") || strings.Contains(m, "context_length") ||
		strings.Contains(m, "too many tokens")
}

// retryAfter parses a Retry-After header in seconds or HTTP-date form.
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
