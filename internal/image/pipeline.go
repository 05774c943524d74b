// Package image validates, downscales and uploads task attachments.
package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/woodsmokeheart/tracker/internal/objectstore"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image exceeds size limit")
	ErrEmptyImage      = errors.New("empty image")
)

type Limits struct {
	// MaxBytes bounds the raw upload size before any re-encoding.
	MaxBytes int64
	// MaxDimension bounds width and height; larger images are downscaled.
	MaxDimension int
	// AllowedTypes is the sniffed-MIME allow-list.
	AllowedTypes []string
}

func DefaultLimits() Limits {
	return Limits{
		MaxBytes:     5 << 20,
		MaxDimension: 1600,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
	}
}

// Pipeline uploads validated attachments and hands back their public URL.
// A failed upload returns an error without any partial state; the caller
// must not write the task record in that case.
type Pipeline struct {
	store  objectstore.Store
	limits Limits
}

func NewPipeline(store objectstore.Store, limits Limits) *Pipeline {
	if len(limits.AllowedTypes) == 0 {
		limits = DefaultLimits()
	}
	return &Pipeline{store: store, limits: limits}
}

// Attach validates data, downscales oversized jpeg/png images, uploads the
// result under a key namespaced by owner and upload time, and returns the
// public URL.
func (p *Pipeline) Attach(ctx context.Context, owner string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if int64(len(data)) > p.limits.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), p.limits.MaxBytes)
	}

	contentType := http.DetectContentType(data)
	if !p.allowed(contentType) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	// Only formats the standard encoders can write back are re-encoded;
	// webp and gif pass through at their original resolution.
	switch contentType {
	case "image/jpeg", "image/png":
		scaled, err := p.downscale(data, contentType)
		if err != nil {
			return "", err
		}
		data = scaled
	}

	key := fmt.Sprintf("%s/%d-%s%s", owner, time.Now().Unix(), uuid.NewString(), extensionFor(contentType))
	if err := p.store.Upload(ctx, key, contentType, data); err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	return p.store.PublicURL(key), nil
}

func (p *Pipeline) allowed(contentType string) bool {
	for _, t := range p.limits.AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

func (p *Pipeline) downscale(data []byte, contentType string) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable image: %v", ErrUnsupportedType, err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= p.limits.MaxDimension && h <= p.limits.MaxDimension {
		return data, nil
	}

	scale := float64(p.limits.MaxDimension) / float64(max(w, h))
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	switch contentType {
	case "image/png":
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
}
