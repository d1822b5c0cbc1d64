// Package ai calls the Gemini endpoint for structured statement extraction
// and for OCR of image-based documents. Responses are decoded strictly: a
// payload that does not match the schema fails closed instead of being
// coerced.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/kieranpgray/coinbag/internal/domain/statements"
	"github.com/kieranpgray/coinbag/pkg/config"
)

// Client wraps the Gemini API for statement extraction
type Client struct {
	genai  *genai.Client
	model  string
	pacer  *rate.Limiter
	logger *slog.Logger
}

// NewClient creates a Gemini-backed extraction client. The pacer spreads
// provider calls across the minute; it is process-local and independent of
// the per-user hourly quota.
func NewClient(ctx context.Context, cfg config.GeminiConfig, logger *slog.Logger) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &Client{
		genai:  gc,
		model:  cfg.Model,
		pacer:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		logger: logger,
	}, nil
}

// ExtractStructured sends raw statement text to the model and returns the
// decoded extraction.
func (c *Client) ExtractStructured(ctx context.Context, text string) (*statements.Extraction, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: structuredPrompt},
				{Text: "Statement text:\n\n" + text},
			},
		},
	}

	raw, err := c.generate(ctx, contents)
	if err != nil {
		return nil, err
	}

	extraction, err := decodeExtraction(raw)
	if err != nil {
		c.logger.Warn("provider response failed schema decode", "error", err)
		return nil, err
	}
	return extraction, nil
}

// ExtractText performs OCR on an image-based PDF by sending the document
// bytes to the model.
func (c *Client) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: ocrPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     pdfBytes,
					},
				},
			},
		},
	}

	return c.generate(ctx, contents)
}

func (c *Client) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return "", fmt.Errorf("provider pacing interrupted: %w", err)
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return raw, nil
}

// IsTransient reports whether a provider error is worth retrying: timeouts
// and server-side failures are, schema violations, auth errors and an open
// circuit are not.
func IsTransient(err error) bool {
	if errors.Is(err, statements.ErrExtractionSchema) || errors.Is(err, statements.ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	// Unclassified transport errors get the benefit of the doubt.
	return strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "EOF")
}
