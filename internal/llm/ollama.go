// Package llm holds chat clients used to generate answers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrEmptyAnswer is returned when the model replies with no content.
var ErrEmptyAnswer = errors.New("model returned an empty answer")

// answerTemperature keeps answers close to the retrieved code.
const answerTemperature = 0.1

// thinkBlock matches the reasoning preamble some local models emit.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// OllamaChat calls the Ollama /api/chat endpoint.
type OllamaChat struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewOllamaChat returns a client for model on the Ollama instance at baseURL.
// A non-positive timeout means five minutes.
func NewOllamaChat(baseURL, model string, timeout time.Duration) *OllamaChat {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaChat{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/chat",
		model:    model,
		http:     &http.Client{Timeout: timeout},
	}
}

// Model returns the chat model name.
func (c *OllamaChat) Model() string { return c.model }

type ollamaChatRequest struct {
	Model    string            `json:"model"`
	Messages []Message         `json:"messages"`
	Stream   bool              `json:"stream"`
	Options  ollamaChatOptions `json:"options"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

// Generate sends the conversation and returns the assistant reply with any
// reasoning block removed.
func (c *OllamaChat) Generate(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Options:  ollamaChatOptions{Temperature: answerTemperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var out ollamaChatResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		return "", fmt.Errorf("ollama chat returned %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode chat response: %w", decodeErr)
	}

	answer := strings.TrimSpace(thinkBlock.ReplaceAllString(out.Message.Content, ""))
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}
