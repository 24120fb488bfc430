package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	opts   Options
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string, opts Options) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	opts = opts.withDefaults()

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	model.SetTemperature(opts.Temperature)
	model.SetMaxOutputTokens(int32(opts.MaxOutputTokens))

	return &Gemini{
		client: client,
		model:  model,
		opts:   opts,
	}, nil
}

// ScanReceipt sends the receipt to Gemini
func (g *Gemini) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	jpegData, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects just the format suffix, not the full MIME type
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("jpeg", jpegData), genai.Text(userInstruction))
	if err != nil {
		return nil, fmt.Errorf("%w: generating content: %w", ErrUnavailable, err)
	}

	var responseText strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				responseText.WriteString(string(text))
			}
		}
	}

	result := &Result{Text: responseText.String()}
	if usage := resp.UsageMetadata; usage != nil {
		result.InputTokens = int(usage.PromptTokenCount)
		result.OutputTokens = int(usage.CandidatesTokenCount)
	}
	return result, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
