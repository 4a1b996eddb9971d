// Package llm talks to chat-completion backends: Groq's OpenAI-compatible API
// over HTTP and a local Ollama server through langchaingo.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Usage holds the token counters reported by the backend for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Completer is a chat-completion backend.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
	After      time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

func (e *RetryableError) Retryable() bool { return true }

// RetryAfter is the server-provided wait, zero when none was sent.
func (e *RetryableError) RetryAfter() time.Duration { return e.After }

// ContextLengthError reports a request that exceeded the model's token limit.
// Limit and Requested are zero when the backend did not say. MessagesOnly
// is set when Requested counts the prompt alone, without the completion
// tokens the request reserved.
type ContextLengthError struct {
	Limit        int
	Requested    int
	MessagesOnly bool
	Message      string
}

func (e *ContextLengthError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("context length exceeded: limit %d, requested %d", e.Limit, e.Requested)
	}
	return "context length exceeded: " + truncate(e.Message, 200)
}

// Overage is the number of tokens over the limit, or zero when unknown.
// completion is the max_tokens of the rejected request; it is added when
// the backend counted the messages only.
func (e *ContextLengthError) Overage(completion int) int {
	total := e.Requested
	if e.MessagesOnly {
		total += completion
	}
	if e.Limit <= 0 || total <= e.Limit {
		return 0
	}
	return total - e.Limit
}

// PromptTokens is the server's count of the rejected prompt, or zero when
// unknown.
func (e *ContextLengthError) PromptTokens(completion int) int {
	if e.MessagesOnly {
		return e.Requested
	}
	return max(e.Requested-completion, 0)
}

var (
	maxContextRe = regexp.MustCompile(`(?i)maximum context length is (\d+) tokens.*?(requested|resulted in) (\d+) tokens`)
	limitReqRe   = regexp.MustCompile(`(?i)limit (\d+),\s*requested (\d+)`)
)

// parseContextLength extracts limit and requested token counts from a
// provider error message.
func parseContextLength(msg string) *ContextLengthError {
	e := &ContextLengthError{Message: msg}
	if m := maxContextRe.FindStringSubmatch(msg); m != nil {
		e.Limit, _ = strconv.Atoi(m[1])
		e.Requested, _ = strconv.Atoi(m[3])
		// "your messages resulted in N tokens" leaves out the completion.
		e.MessagesOnly = strings.EqualFold(m[2], "resulted in")
		return e
	}
	if m := limitReqRe.FindStringSubmatch(msg); m != nil {
		e.Limit, _ = strconv.Atoi(m[1])
		e.Requested, _ = strconv.Atoi(m[2])
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
