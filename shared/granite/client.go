// Package granite talks to IBM watsonx.ai: it exchanges the account API key
// for IAM bearer tokens and runs text generation against a Granite model.
package granite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/rs/zerolog/log"
)

const (
	generationPath = "/ml/v1/text/generation"
	apiVersion     = "2023-05-29"

	DefaultTimeout = 120 * time.Second
)

// TokenProvider supplies bearer tokens. *TokenCache is the production
// implementation.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Result is one generation. Text has been through ExtractCode; Raw is the
// model output as received.
type Result struct {
	Text            string `json:"generated_text"`
	Raw             string `json:"-"`
	Model           string `json:"model_id,omitempty"`
	InputTokens     int    `json:"input_token_count,omitempty"`
	GeneratedTokens int    `json:"generated_token_count,omitempty"`
	StopReason      string `json:"stop_reason,omitempty"`
}

// Client runs text generation for a single project and model.
type Client struct {
	creds  Credentials
	tokens TokenProvider
	http   *http.Client
}

type Option func(*Client)

// WithTimeout bounds each generation request.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http.Timeout = d }
}

func WithTokenProvider(p TokenProvider) Option {
	return func(cl *Client) { cl.tokens = p }
}

// NewClient validates creds and builds a client. Without WithTokenProvider
// it owns a TokenCache for creds.APIKey.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.IAMURL == "" {
		creds.IAMURL = DefaultIAMURL
	}
	c := &Client{
		creds: creds,
		http:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.tokens == nil {
		c.tokens = NewTokenCache(creds.IAMURL, creds.APIKey)
	}
	return c, nil
}

func (c *Client) ModelID() string   { return c.creds.ModelID }
func (c *Client) ProjectID() string { return c.creds.ProjectID }

type generationRequest struct {
	Input      string `json:"input"`
	Parameters Params `json:"parameters"`
	ModelID    string `json:"model_id"`
	ProjectID  string `json:"project_id"`
}

type generationResponse struct {
	ModelID   string `json:"model_id"`
	CreatedAt string `json:"created_at"`
	Results   []struct {
		GeneratedText       *string `json:"generated_text"`
		GeneratedTokenCount int     `json:"generated_token_count"`
		InputTokenCount     int     `json:"input_token_count"`
		StopReason          string  `json:"stop_reason"`
	} `json:"results"`
}

// Generate sends prompt to the model once. Token failures surface as
// AuthErrors; transport failures, non-2xx answers and bodies without a
// generated_text surface as InferenceErrors. Nothing is retried.
func (c *Client) Generate(ctx context.Context, prompt string, params Params) (*Result, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(generationRequest{
		Input:      prompt,
		Parameters: params,
		ModelID:    c.creds.ModelID,
		ProjectID:  c.creds.ProjectID,
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.Inference, err, "encode generation request")
	}

	url := c.creds.BaseURL + generationPath + "?version=" + apiVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Wrap(apierr.Inference, err, "build generation request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Transient(apierr.Inference, err, "failed to generate test cases")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Transient(apierr.Inference, err, "read generation response")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := apierr.New(apierr.Inference, "text generation failed (HTTP %d): %s", resp.StatusCode, truncate(raw, 500))
		e.Retryable = resp.StatusCode >= http.StatusInternalServerError
		return nil, e
	}

	var gr generationResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, apierr.Wrap(apierr.Inference, err, "decode generation response")
	}
	if len(gr.Results) == 0 || gr.Results[0].GeneratedText == nil {
		return nil, apierr.New(apierr.Inference, "generation response has no generated_text")
	}

	first := gr.Results[0]
	log.Debug().
		Str("model", gr.ModelID).
		Int("input_tokens", first.InputTokenCount).
		Int("generated_tokens", first.GeneratedTokenCount).
		Str("stop_reason", first.StopReason).
		Dur("took", time.Since(start)).
		Msg("generation complete")

	return &Result{
		Text:            ExtractCode(*first.GeneratedText),
		Raw:             *first.GeneratedText,
		Model:           gr.ModelID,
		InputTokens:     first.InputTokenCount,
		GeneratedTokens: first.GeneratedTokenCount,
		StopReason:      first.StopReason,
	}, nil
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return fmt.Sprintf("%s...", b[:max])
}
