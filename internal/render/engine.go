package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/snrmed/family-display-backend3/internal/models"
)

// maxFrameBytes caps a single rendered bitmap read from the engine.
const maxFrameBytes = 16 << 20

// Request is the payload handed to the render engine: the layout, the
// aggregated data, and the resolved background reference.
type Request struct {
	Layout     *models.Layout     `json:"layout"`
	Data       *models.RenderData `json:"data"`
	Background string             `json:"background"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
}

// Engine is the external rasterization collaborator (a headless-browser
// screenshot service). It is opaque to this core: payload in, bitmap out.
type Engine interface {
	RenderToImage(ctx context.Context, req Request) ([]byte, error)
}

// HTTPEngine implements Engine against a render sidecar that accepts the
// request JSON on POST /render and responds with a PNG body.
type HTTPEngine struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPEngine creates an HTTP engine client.
func NewHTTPEngine(baseURL string, client *http.Client) *HTTPEngine {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPEngine{BaseURL: baseURL, Client: client}
}

// RenderToImage implements Engine.
func (e *HTTPEngine) RenderToImage(ctx context.Context, req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("engine: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine: status %d", resp.StatusCode)
	}
	png, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("engine: read bitmap: %w", err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("engine: empty bitmap")
	}
	return png, nil
}
