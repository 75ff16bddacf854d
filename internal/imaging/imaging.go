// Package imaging normalizes uploaded book images for in-row base64 storage.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"io"

	"github.com/nfnt/resize"
)

// MaxWidth is the widest image stored; wider uploads are scaled down.
const MaxWidth = 600

// ErrUnsupported is returned for input that is not a JPEG, PNG or GIF image.
var ErrUnsupported = errors.New("unsupported image format")

// EncodeBase64JPEG decodes r, scales it to at most maxWidth pixels wide keeping
// the aspect ratio, and returns the JPEG re-encoding as standard base64.
func EncodeBase64JPEG(r io.Reader, maxWidth uint) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	if uint(img.Bounds().Dx()) > maxWidth {
		img = resize.Resize(maxWidth, 0, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
