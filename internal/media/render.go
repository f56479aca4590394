// Package media renders social images for articles and stores them where the
// publishers can reach them.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jdziat/newsdesk/pkg/core"
)

// Social card size used by the placeholder renderer.
const (
	CardWidth  = 1200
	CardHeight = 630
)

// RenderRequest describes the card to draw for an article.
type RenderRequest struct {
	ArticleID string   `json:"articleId"`
	Template  string   `json:"template"`
	Title     string   `json:"title"`
	Subtitle  string   `json:"subtitle,omitempty"`
	Category  string   `json:"category,omitempty"`
	Source    string   `json:"source,omitempty"`
	ImageURL  string   `json:"imageUrl,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Image is a rendered image.
type Image struct {
	Data        []byte
	ContentType string
}

// Renderer draws a social image.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*Image, error)
}

// HTTPRenderer calls an image render service: POST {endpoint}/render/{template}
// with the request as JSON, image bytes in the response.
type HTTPRenderer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRenderer creates a renderer for the service at endpoint.
func NewHTTPRenderer(endpoint string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRenderer{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, req RenderRequest) (*Image, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode render request: %w", err)
	}
	target := r.endpoint + "/render/" + url.PathEscape(req.Template)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/png")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, core.ExternalFailure("renderer", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, core.ExternalFailure("renderer", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := core.ExternalFailure("renderer", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, core.NoRetry(err)
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, core.ExternalFailure("renderer", fmt.Errorf("empty image"))
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &Image{Data: data, ContentType: ct}, nil
}

// PlaceholderRenderer draws a solid card in a colour derived from the
// article category, with a darker band along the bottom edge. It needs no
// external service.
type PlaceholderRenderer struct{}

var palette = []color.RGBA{
	{R: 0x1f, G: 0x4e, B: 0x79, A: 0xff},
	{R: 0x8e, G: 0x24, B: 0x2d, A: 0xff},
	{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff},
	{R: 0x6a, G: 0x1b, B: 0x9a, A: 0xff},
	{R: 0xe6, G: 0x51, B: 0x00, A: 0xff},
	{R: 0x37, G: 0x47, B: 0x4f, A: 0xff},
}

// CategoryColor returns the card colour for a category. Empty categories
// use the first palette entry.
func CategoryColor(category string) color.RGBA {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return palette[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(category))
	return palette[h.Sum32()%uint32(len(palette))]
}

func (PlaceholderRenderer) Render(ctx context.Context, req RenderRequest) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bg := CategoryColor(req.Category)
	band := color.RGBA{R: bg.R / 2, G: bg.G / 2, B: bg.B / 2, A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, CardHeight-90, CardWidth, CardHeight), &image.Uniform{C: band}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return &Image{Data: buf.Bytes(), ContentType: "image/png"}, nil
}
