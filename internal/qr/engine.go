// Package qr derives an item's detail URL and encodes it as a PNG QR code
// data URL.
package qr

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/safar/qr-stock/internal/models"
	goqr "github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"
)

const dataURLPrefix = "data:image/png;base64,"

// EncodeFunc renders content as PNG bytes.
type EncodeFunc func(content string, size int) ([]byte, error)

type Engine struct {
	baseURL     string
	size        int
	concurrency int
	encode      EncodeFunc
}

type Option func(*Engine)

func WithSize(px int) Option {
	return func(e *Engine) { e.size = px }
}

func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithEncoder replaces the PNG renderer.
func WithEncoder(fn EncodeFunc) Option {
	return func(e *Engine) { e.encode = fn }
}

func New(baseURL string, opts ...Option) (*Engine, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid qr base url %q", baseURL)
	}

	e := &Engine{
		baseURL:     strings.TrimRight(baseURL, "/"),
		size:        256,
		concurrency: 8,
		encode:      encodePNG,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func encodePNG(content string, size int) ([]byte, error) {
	return goqr.Encode(content, goqr.Medium, size)
}

func (e *Engine) DetailURL(identifier string) string {
	return e.baseURL + "/stocks/" + url.PathEscape(identifier)
}

// Encode returns content as a PNG data URL.
func (e *Engine) Encode(content string) (string, error) {
	png, err := e.encode(content, e.size)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// Annotate sets item.QRCode to the encoded detail URL of the item.
func (e *Engine) Annotate(item *models.StockItem) error {
	img, err := e.Encode(e.DetailURL(item.ItemID))
	if err != nil {
		return fmt.Errorf("annotate %s: %w", item.ItemID, err)
	}
	item.QRCode = &img
	return nil
}

// AnnotateBatch annotates every item; the first failure cancels the rest and
// is returned. Items are modified in place.
func (e *Engine) AnnotateBatch(ctx context.Context, items []models.StockItem) error {
	g, ctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}

	for i := range items {
		item := &items[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return e.Annotate(item)
		})
	}
	return g.Wait()
}

// DecodeDataURL returns the PNG bytes held in a data URL produced by Encode.
func DecodeDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return nil, fmt.Errorf("not a png data url")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, dataURLPrefix))
}
