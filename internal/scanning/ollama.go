package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements Scanner against a local Ollama server.
// It needs a vision model such as llava or qwen2-vl.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama scanner
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on local hardware
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *Ollama) ScanTicket(imageData []byte, contentType string) (*TicketData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pngData, err := toPNG(imageData, contentType)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You read fuel receipts, pump displays and odometers. Report only what is printed.",
			},
			{
				Role:    "user",
				Content: ticketScanPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(msg))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	data, err := parseTicketJSON(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing ticket data: %w", err)
	}
	return data, nil
}

// Close is a no-op; the HTTP client holds no resources
func (o *Ollama) Close() error {
	return nil
}
