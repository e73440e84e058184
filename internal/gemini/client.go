package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Options configures a Client
type Options struct {
	Keys           []string
	Model          string
	BaseURL        string
	UseRelay       bool
	RelayURL       string
	ProxyURL       string // HTTP(S) proxy for direct calls; ignored in relay mode
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	KeyPinTTL      time.Duration
}

// Client talks to the Gemini generateContent REST endpoint, either directly
// (API key as a query parameter) or through a relay service (key as a Bearer
// token). The API is stateless: callers pass the full conversation history on
// every call.
type Client struct {
	model      string
	baseURL    string
	relayURL   string
	useRelay   bool
	client     *http.Client
	pool       *KeyPool
	maxRetries int
	baseDelay  time.Duration
}

// NewClient creates a Gemini client from options
func NewClient(opts Options) (*Client, error) {
	if len(opts.Keys) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}

	transport := &http.Transport{
		Proxy:               nil,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	// The HTTP proxy only wraps direct calls; relay traffic goes straight out
	if opts.ProxyURL != "" && !opts.UseRelay {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}

	return &Client{
		model:    opts.Model,
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		relayURL: strings.TrimSuffix(opts.RelayURL, "/"),
		useRelay: opts.UseRelay,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		pool:       NewKeyPool(opts.Keys, opts.KeyPinTTL),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.RetryBaseDelay,
	}, nil
}

// Pool exposes the key pool for pin expiry sweeps
func (c *Client) Pool() *KeyPool {
	return c.pool
}

// GenerateImage asks the model for a new image from a text prompt, replaying
// prior turns for multi-turn context
func (c *Client) GenerateImage(ctx context.Context, sessionKey, prompt string, history []Content) (*Result, error) {
	contents := append(append([]Content{}, history...), Content{
		Role:  "user",
		Parts: []Part{TextPart(prompt)},
	})
	return c.generate(ctx, sessionKey, contents, []string{"Text", "Image"})
}

// EditImage asks the model to modify the given image per the prompt
func (c *Client) EditImage(ctx context.Context, sessionKey, prompt string, image []byte, history []Content) (*Result, error) {
	contents := append(append([]Content{}, history...), Content{
		Role:  "user",
		Parts: []Part{TextPart(prompt), ImagePart(image)},
	})
	return c.generate(ctx, sessionKey, contents, []string{"Text", "Image"})
}

// MergeImages asks the model to combine several images per the prompt
func (c *Client) MergeImages(ctx context.Context, sessionKey, prompt string, images [][]byte) (*Result, error) {
	parts := []Part{TextPart(prompt)}
	for _, img := range images {
		parts = append(parts, ImagePart(img))
	}
	contents := []Content{{Role: "user", Parts: parts}}
	return c.generate(ctx, sessionKey, contents, []string{"Text", "Image"})
}

// DescribeImage sends an image with an instruction and returns a text-only
// reply. Serves both reverse-prompt and image analysis.
func (c *Client) DescribeImage(ctx context.Context, sessionKey, instruction string, image []byte) (*Result, error) {
	contents := []Content{{
		Role:  "user",
		Parts: []Part{TextPart(instruction), ImagePart(image)},
	}}
	result, err := c.generate(ctx, sessionKey, contents, nil)
	if err != nil {
		return nil, err
	}
	if result.Text == "" {
		return nil, &APIError{Kind: KindMalformed, Message: "no text in response"}
	}
	return result, nil
}

// generate issues one generateContent call and parses the reply
func (c *Client) generate(ctx context.Context, sessionKey string, contents []Content, modalities []string) (*Result, error) {
	reqBody := generateRequest{Contents: contents}
	if len(modalities) > 0 {
		reqBody.GenerationConfig = &GenerationConfig{ResponseModalities: modalities}
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	apiKey := c.pool.KeyFor(sessionKey)
	endpoint, bearer := c.endpoint(apiKey)

	log.Debugf("Calling Gemini API for session %s (%d contents)", sessionKey, len(contents))
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{
			Kind:    kindForStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: errorMessage(body, resp.StatusCode),
		}
		if apiErr.Kind == KindAuth {
			// Free the session from the failing key before surfacing the error
			c.pool.Rotate(sessionKey)
		}
		log.Errorf("Gemini API call failed: %v", apiErr)
		return nil, apiErr
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &APIError{Kind: KindMalformed, Message: "empty response body, check relay/proxy configuration"}
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &APIError{Kind: KindMalformed, Message: fmt.Sprintf("non-JSON response body: %v", err)}
	}
	if len(parsed.Candidates) == 0 {
		return nil, &APIError{Kind: KindMalformed, Message: "no candidates in response"}
	}

	cand := parsed.Candidates[0]
	if cand.FinishReason == "IMAGE_SAFETY" {
		log.Warnf("Gemini API blocked output with finish reason %s", cand.FinishReason)
		return nil, &APIError{Kind: KindSafety, Message: cand.FinishReason, Category: RejectionImageSafety}
	}

	return parseResult(cand)
}

// endpoint returns the URL and bearer token for the configured transport mode
func (c *Client) endpoint(apiKey string) (endpoint, bearer string) {
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)
	if c.useRelay {
		return c.relayURL + path, apiKey
	}
	return c.baseURL + path + "?key=" + url.QueryEscape(apiKey), ""
}

// parseResult walks the candidate's parts in order, keeping mixed text and
// image replies intact
func parseResult(cand candidate) (*Result, error) {
	result := &Result{}
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(part.Text)
		}
		if part.InlineData != nil && part.InlineData.Data != "" && result.Image == nil {
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, &APIError{Kind: KindMalformed, Message: fmt.Sprintf("bad inline image data: %v", err)}
			}
			result.Image = data
		}
	}
	result.Text = strings.TrimSpace(text.String())

	// A text-only reply where an image was expected usually means the model
	// refused the request
	if result.Image == nil && result.Text != "" && isRefusalText(result.Text) {
		return nil, &APIError{Kind: KindSafety, Message: result.Text, Category: categorizeRefusal(result.Text)}
	}

	return result, nil
}

// errorMessage extracts a human-readable message from an upstream error body
func errorMessage(body []byte, status int) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Sprintf("request failed with status %d (empty body)", status)
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// encodeBase64 encodes raw bytes for inline data parts
func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
