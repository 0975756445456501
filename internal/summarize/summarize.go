package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Summarizer turns free-form text into a summary following instruction.
type Summarizer interface {
	Summarize(ctx context.Context, instruction, text string) (string, error)
}

// Func adapts a plain function to Summarizer.
type Func func(ctx context.Context, instruction, text string) (string, error)

func (f Func) Summarize(ctx context.Context, instruction, text string) (string, error) {
	return f(ctx, instruction, text)
}

const maxReplySize = 4 << 20

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// OllamaClient talks to an Ollama server's chat endpoint.
type OllamaClient struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewOllamaClient(endpoint, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *OllamaClient) Summarize(ctx context.Context, instruction, text string) (string, error) {
	data, err := json.Marshal(chatRequest{
		Model:  c.model,
		Stream: false,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewBuffer(data))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("contact summarizer: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return "", fmt.Errorf("read summarizer reply: %w", err)
	}

	var out chatResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &out) == nil && out.Error != "" {
			return "", fmt.Errorf("summarizer returned status %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("summarizer returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode summarizer reply: %w", err)
	}
	return out.Message.Content, nil
}

// FormatReport cleans a summarizer reply. A JSON object is re-serialized
// with sorted keys and four-space indent; anything else is returned verbatim.
func FormatReport(reply string) string {
	clean := strings.TrimSpace(reply)
	clean = strings.ReplaceAll(clean, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)

	// numbers stay json.Number so large integers survive the round trip
	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return reply
	}
	if _, err := dec.Token(); err != io.EOF {
		return reply
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(obj); err != nil {
		return reply
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
