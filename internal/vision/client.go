// Package vision talks to the image-recognition sidecar. The sidecar is
// optional: every failure is reported as apperror.ErrCollaboratorUnavailable
// so callers can fall back to manual entry.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-pos-ledger/internal/apperror"

	"go.uber.org/zap"
)

// Detector is what the lookup path needs from the sidecar.
type Detector interface {
	Detect(ctx context.Context, image string) (*Result, error)
	Health(ctx context.Context) (*Health, error)
	SupportedProducts(ctx context.Context) (Info, error)
	ModelInfo(ctx context.Context) (Info, error)
}

// Info is a free-form sidecar document, passed through as received.
type Info map[string]any

// BoundingBox locates a detection in the frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one candidate. Confidences are percentages.
type Detection struct {
	Barcode            string       `json:"barcode"`
	ClassName          string       `json:"class_name"`
	ProductName        string       `json:"product_name,omitempty"`
	Confidence         float64      `json:"confidence"`
	AdjustedConfidence *float64     `json:"adjusted_confidence,omitempty"`
	BBox               *BoundingBox `json:"bbox,omitempty"`
}

// Score is the adjusted confidence when the sidecar sent one.
func (d Detection) Score() float64 {
	if d.AdjustedConfidence != nil {
		return *d.AdjustedConfidence
	}
	return d.Confidence
}

// Suggestion is a barcode the sidecar offers when it is unsure.
type Suggestion struct {
	Barcode   string `json:"barcode"`
	Suggested bool   `json:"suggested"`
}

// Result is the body of POST /detect.
type Result struct {
	Success        bool         `json:"success"`
	Detections     []Detection  `json:"detections"`
	Fallback       bool         `json:"fallback"`
	Message        string       `json:"message"`
	Suggestions    []Suggestion `json:"suggestions"`
	ProcessingTime float64      `json:"processing_time"`
	Timestamp      string       `json:"timestamp"`
}

// Health is the body of GET /health.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Model     string `json:"model,omitempty"`
}

// Client calls the sidecar over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	log        *zap.Logger
}

// NewClient returns a client with a per-call timeout.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type detectRequest struct {
	Image string `json:"image"`
}

// Detect sends a base64 image and returns the sidecar's candidates.
func (c *Client) Detect(ctx context.Context, image string) (*Result, error) {
	body, err := json.Marshal(detectRequest{Image: image})
	if err != nil {
		return nil, err
	}

	var out Result
	if err := c.do(ctx, http.MethodPost, "/detect", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	c.log.Debug("vision detection",
		zap.Int("detections", len(out.Detections)),
		zap.Bool("fallback", out.Fallback),
		zap.Float64("processing_time", out.ProcessingTime))
	return &out, nil
}

// Health reports whether the sidecar is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SupportedProducts lists the classes the model was trained on.
func (c *Client) SupportedProducts(ctx context.Context) (Info, error) {
	return c.info(ctx, "/products")
}

// ModelInfo describes the loaded model.
func (c *Client) ModelInfo(ctx context.Context) (Info, error) {
	return c.info(ctx, "/model/info")
}

func (c *Client) info(ctx context.Context, path string) (Info, error) {
	var out Info
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("vision %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.log.Warn("vision service unreachable", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("vision %s: %v: %w", path, err, apperror.ErrCollaboratorUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("vision %s: read body: %v: %w", path, err, apperror.ErrCollaboratorUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("vision service error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("vision %s: status %d: %w", path, resp.StatusCode, apperror.ErrCollaboratorUnavailable)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("vision %s: decode: %v: %w", path, err, apperror.ErrCollaboratorUnavailable)
	}
	return nil
}
