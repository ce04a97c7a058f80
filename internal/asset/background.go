package asset

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// LoadBackground fetches and decodes a background image (PNG, JPEG, WebP or BMP).
func (l *Loader) LoadBackground(ctx context.Context, url string) (image.Image, error) {
	data, err := l.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}

// DecodeImage decodes any registered image format.
func DecodeImage(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}
	return img, nil
}
