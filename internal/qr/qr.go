// Package qr рендерит QR-коды коротких ссылок в SVG или PNG.
package qr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

const (
	FormatSVG = "svg"
	FormatPNG = "png"

	DefaultSize = 200
	MinSize     = 100
	MaxSize     = 1000
)

var (
	ErrInvalidSize   = fmt.Errorf("size must be between %d and %d", MinSize, MaxSize)
	ErrInvalidFormat = errors.New("format must be svg or png")
)

// Image готовое изображение и его MIME-тип
type Image struct {
	ContentType string
	Data        []byte
}

// Render кодирует content в QR-символ с уровнем коррекции Medium
func Render(content string, size int, format string) (*Image, error) {
	if size < MinSize || size > MaxSize {
		return nil, ErrInvalidSize
	}

	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr: %w", err)
	}

	switch format {
	case "", FormatSVG:
		return &Image{ContentType: "image/svg+xml", Data: svg(code.Bitmap(), size)}, nil
	case FormatPNG:
		data, err := code.PNG(size)
		if err != nil {
			return nil, fmt.Errorf("failed to render png: %w", err)
		}
		return &Image{ContentType: "image/png", Data: data}, nil
	default:
		return nil, ErrInvalidFormat
	}
}

// svg рисует по одному квадрату на тёмный модуль; viewBox в модулях, масштабирует браузер
func svg(bitmap [][]bool, size int) []byte {
	n := len(bitmap)
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`,
		size, size, n, n)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`, n, n)
	b.WriteString(`<path fill="#000000" d="`)
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				fmt.Fprintf(&b, "M%d %dh1v1h-1z", x, y)
			}
		}
	}
	b.WriteString(`"/></svg>`)
	return []byte(b.String())
}
