package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// editSuffix is appended to image models when reference images are
// supplied, selecting the backend's editing variant.
const editSuffix = "/edit"

// ClientConfig holds settings for the HTTP generation client.
type ClientConfig struct {
	// BaseURL of the model gateway, e.g. "https://fal.run".
	BaseURL string
	// APIKey is sent as the Authorization key.
	APIKey string
	// RequestTimeout bounds a single generation call. Video synthesis is
	// slow; defaults to 5 minutes when zero.
	RequestTimeout time.Duration
	// RequestsPerSecond throttles outbound calls (0 = unlimited).
	RequestsPerSecond float64
	// Burst is the limiter burst size when throttled.
	Burst int
}

// Client invokes generative model endpoints over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	rehost  Rehoster
	logger  *slog.Logger
}

// NewClient creates a generation client. rehost may be nil, in which
// case generated URLs are returned as-is.
func NewClient(cfg ClientConfig, rehost Rehoster, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	if rehost == nil {
		rehost = PassthroughRehoster{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		rehost:  rehost,
		logger:  logger,
	}
}

// apiRequest is the wire format sent to the model gateway.
type apiRequest struct {
	Prompt        string   `json:"prompt"`
	ImageURLs     []string `json:"image_urls,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	FirstFrameURL string   `json:"first_frame_url,omitempty"`
	LastFrameURL  string   `json:"last_frame_url,omitempty"`
}

// apiResponse covers both image and video endpoint payloads.
type apiResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Video *struct {
		URL string `json:"url"`
	} `json:"video"`
	Detail string `json:"detail"`
}

// Generate calls the model endpoint and returns the rehosted media URL.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if req.Kind == KindVideo && (req.FirstFrame != "") != (req.LastFrame != "") {
		return "", ErrMissingFrame
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	model := req.Model
	if req.Kind == KindImage && len(req.ImageURLs) > 0 && !strings.HasSuffix(model, editSuffix) {
		model += editSuffix
	}

	body := apiRequest{
		Prompt:        req.Prompt,
		ImageURLs:     req.ImageURLs,
		ImageURL:      req.SourceImage,
		FirstFrameURL: req.FirstFrame,
		LastFrameURL:  req.LastFrame,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/" + model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Key "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode response from %s: %w", model, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := decoded.Detail
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("model %s returned %d: %s", model, resp.StatusCode, msg)
	}

	mediaURL, ext := "", "png"
	switch req.Kind {
	case KindVideo:
		ext = "mp4"
		if decoded.Video != nil {
			mediaURL = decoded.Video.URL
		}
	default:
		if len(decoded.Images) > 0 {
			mediaURL = decoded.Images[0].URL
		}
	}
	if mediaURL == "" {
		return "", fmt.Errorf("model %s: %w", model, ErrNoMedia)
	}

	c.logger.Debug("generation complete",
		"model", model,
		"kind", string(req.Kind),
		"duration_ms", time.Since(start).Milliseconds())

	return c.rehost.Rehost(ctx, mediaURL, ext)
}
