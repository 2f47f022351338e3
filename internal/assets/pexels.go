package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const pexelsAPI = "https://api.pexels.com/v1"

// maxImageBytes caps a single downloaded image.
const maxImageBytes = 10 << 20

// ImageSource supplies fresh themed images for the prefetch scheduler.
type ImageSource interface {
	// Search returns up to count downloadable image URLs for a theme.
	Search(ctx context.Context, theme string, count int) ([]string, error)
	// Download fetches one image's bytes.
	Download(ctx context.Context, url string) ([]byte, error)
}

// pexelsQueries maps a theme to a more useful Pexels search term.
var pexelsQueries = map[string]string{
	"abstract":  "abstract minimal gradient",
	"geometric": "geometric shapes minimal",
	"kids":      "colorful shapes kids",
	"photo":     "landscape photography",
	"minimal":   "minimal texture",
}

// Pexels implements ImageSource against the Pexels search API.
type Pexels struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewPexels creates the Pexels image source. baseURL may be empty to use the
// public endpoint.
func NewPexels(apiKey, baseURL string, client *http.Client) *Pexels {
	if baseURL == "" {
		baseURL = pexelsAPI
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Pexels{APIKey: apiKey, BaseURL: baseURL, Client: client}
}

// Search implements ImageSource. Landscape variants are preferred since the
// display is wide.
func (p *Pexels) Search(ctx context.Context, theme string, count int) ([]string, error) {
	query := theme
	if q, ok := pexelsQueries[theme]; ok {
		query = q
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", fmt.Sprint(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("pexels: build request: %w", err)
	}
	req.Header.Set("Authorization", p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pexels: upstream status %d", resp.StatusCode)
	}

	var body struct {
		Photos []struct {
			Src struct {
				Landscape string `json:"landscape"`
				Large     string `json:"large"`
			} `json:"src"`
		} `json:"photos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("pexels: decode: %w", err)
	}

	urls := make([]string, 0, len(body.Photos))
	for _, photo := range body.Photos {
		u := photo.Src.Landscape
		if u == "" {
			u = photo.Src.Large
		}
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// Download implements ImageSource.
func (p *Pexels) Download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pexels: build download: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pexels: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("pexels: read image: %w", err)
	}
	return data, nil
}
