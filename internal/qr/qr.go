package qr

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Renderer turns an opaque payload into an image byte stream.
type Renderer interface {
	Render(payload string, size int) ([]byte, error)
	ContentType() string
}

// PNG renders QR codes as PNG with medium error correction.
type PNG struct {
	Level qrcode.RecoveryLevel
}

// NewPNG returns a PNG renderer.
func NewPNG() *PNG {
	return &PNG{Level: qrcode.Medium}
}

// Render encodes payload into a size x size PNG. Non-positive sizes select DefaultSize.
func (p *PNG) Render(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("qr: empty payload")
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(payload, p.Level, size)
}

func (p *PNG) ContentType() string { return "image/png" }
