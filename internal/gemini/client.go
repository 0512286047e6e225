// Package gemini implements the streaming response engine: it issues
// generation requests against the remote generative-language endpoint
// and incrementally recovers text fragments from the imperfectly-chunked
// response stream (see Decoder).
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultBaseURL is the public generation endpoint. The model name and
// streaming operation are appended per request.
const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// systemInstruction is the fixed persona prepended to every prompt.
const systemInstruction = "You are a knowledgeable podcast research assistant. " +
	"You help users discover podcasts, research episode topics, summarize shows, " +
	"and compare coverage across programs. Answer concisely and concretely."

// harmCategories receive a safety threshold on every request.
var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// Sentinel errors for generation calls. Check with errors.Is().
var (
	// ErrMissingCredential indicates no API credential was resolved.
	// Raised before any network call.
	ErrMissingCredential = errors.New("missing API credential")

	// ErrEmptyBody indicates the transport yielded no readable stream.
	ErrEmptyBody = errors.New("empty response body")

	// ErrEmptyPrompt indicates the prompt text was empty.
	ErrEmptyPrompt = errors.New("empty prompt")
)

// RequestError reports a non-success status from the endpoint. The
// stream is aborted and no partial fragments are considered valid.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("generation request failed: status %d: %s", e.Status, e.Body)
}

// Turn is one prior exchange half, role-labeled for prompt context.
type Turn struct {
	Role    string
	Content string
}

// StreamRequest carries everything one generation stream needs.
type StreamRequest struct {
	// Prompt is the new user input. Must be non-empty.
	Prompt string

	// History is the bounded window of prior turns, oldest first. The
	// client serializes at most Config.HistoryWindow of them, newest
	// last, dropping from the front.
	History []Turn

	// Interests is the optional long-term-memory digest. May be empty.
	Interests string

	// Credential authorizes the call; passed as a query parameter.
	Credential string
}

// FragmentFunc receives each recovered text fragment, synchronously and
// in arrival order. It must not retain the string across calls.
type FragmentFunc func(text string)

// Config contains the fixed generation parameters sent with every
// request plus client plumbing.
type Config struct {
	ModelName       string
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	SafetyThreshold string
	HistoryWindow   int

	// BaseURL overrides the endpoint (tests). Empty = public endpoint.
	BaseURL string

	// StreamTimeout bounds one whole stream, connect through last byte.
	// Zero disables the bound.
	StreamTimeout time.Duration

	// HTTPClient overrides the transport. Nil = http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client issues streaming generation requests.
// Safe for concurrent use; each call owns its own Decoder.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a generation client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Request body types for the generation endpoint.
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GenerateStream issues one streaming generation request and invokes
// onFragment for every recovered text fragment as it is decoded. It
// returns after the stream ends or fails; fragments already delivered
// stay delivered either way.
//
// Delivery guarantees: at least once per successfully decoded record,
// in arrival order, no batching, no reordering.
func (c *Client) GenerateStream(ctx context.Context, req StreamRequest, onFragment FragmentFunc) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if req.Credential == "" {
		return ErrMissingCredential
	}

	if c.cfg.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.StreamTimeout)
		defer cancel()
	}

	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL(req.Credential), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return &RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return ErrEmptyBody
	}

	return c.consume(ctx, resp.Body, onFragment)
}

// consume runs the incremental parse loop over the response stream.
func (c *Client) consume(ctx context.Context, r io.Reader, onFragment FragmentFunc) error {
	dec := &Decoder{}
	buf := make([]byte, 4096)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, fragment := range dec.Feed(buf[:n]) {
				onFragment(fragment)
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			for _, fragment := range dec.Finish() {
				onFragment(fragment)
			}
			c.logger.Debug("stream complete", "unparsed_bytes", dec.Buffered())
			return nil
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("stream canceled: %w", ctxErr)
			}
			return fmt.Errorf("reading stream: %w", err)
		}
	}
}

// streamURL builds the endpoint URL with the credential as a query
// parameter, the way the generation API authenticates.
func (c *Client) streamURL(credential string) string {
	base := c.cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s",
		base, c.cfg.ModelName, url.QueryEscape(credential))
}

// buildPayload composes the full prompt and fixed parameters.
func (c *Client) buildPayload(req StreamRequest) generateRequest {
	settings := make([]safetySetting, 0, len(harmCategories))
	for _, cat := range harmCategories {
		settings = append(settings, safetySetting{Category: cat, Threshold: c.cfg.SafetyThreshold})
	}

	return generateRequest{
		Contents: []content{{Parts: []part{{Text: c.buildPrompt(req)}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.cfg.Temperature,
			TopP:            c.cfg.TopP,
			TopK:            c.cfg.TopK,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
		},
		SafetySettings: settings,
	}
}

// buildPrompt serializes the system instruction, the optional interests
// digest, the bounded recent-turn window (role-labeled, newest last),
// and the new prompt into one text part.
func (c *Client) buildPrompt(req StreamRequest) string {
	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\n")

	if req.Interests != "" {
		sb.WriteString(req.Interests)
		sb.WriteString("\n\n")
	}

	history := req.History
	window := c.cfg.HistoryWindow
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history {
			sb.WriteString(turn.Role)
			sb.WriteString(": ")
			sb.WriteString(turn.Content)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}

	sb.WriteString("user: ")
	sb.WriteString(req.Prompt)
	return sb.String()
}
