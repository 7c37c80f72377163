package ticket

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/skip2/go-qrcode"
)

const DefaultQRSize = 256

// RenderQR encodes the token text as a PNG QR code
func RenderQR(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("ticket token is empty")
	}
	if size <= 0 {
		size = DefaultQRSize
	}

	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to build qr code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}
