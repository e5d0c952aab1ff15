package analysis

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"

	domain "github.com/deepfake-detector/api/internal/domain/analysis"
)

// DecodeFrame turns one batch entry into an image. A data-URI header
// ("data:image/jpeg;base64,") is stripped when present. Any failure wraps
// ErrFrameDecode.
func DecodeFrame(raw string) (image.Image, error) {
	payload := raw
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrFrameDecode)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %v", domain.ErrFrameDecode, err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFrameDecode, err)
	}
	return img, nil
}
