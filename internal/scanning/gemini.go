package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// Gemini implements Scanner using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a Gemini scanner
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   client.GenerativeModel(modelName),
		timeout: 30 * time.Second,
	}, nil
}

func (g *Gemini) ScanTicket(imageData []byte, contentType string) (*TicketData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	pngData, err := toPNG(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData takes the format suffix, not the MIME type
	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData("png", pngData),
		genai.Text(ticketScanPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	data, err := parseTicketJSON(text.String())
	if err != nil {
		return nil, fmt.Errorf("parsing ticket data: %w", err)
	}
	return data, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}
