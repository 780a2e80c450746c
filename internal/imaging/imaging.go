// Package imaging normalizes uploaded item photos: format validation,
// downscaling, and JPEG re-encoding for compact storage.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxUploadBytes caps the accepted upload size.
const MaxUploadBytes = 10 << 20

// MaxDimension is the maximum width or height for stored photos.
const MaxDimension = 800

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// Photo is a processed, storage-ready image.
type Photo struct {
	Data []byte
	MIME string
}

// Process reads photo data, validates the format by sniffing bytes,
// downscales oversized images, and re-encodes as JPEG.
func Process(r io.Reader) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading photo data: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("photo exceeds %d MB limit", MaxUploadBytes>>20)
	}

	// Sniff the real MIME type; client headers are not trusted.
	detected := http.DetectContentType(data)
	if detected != "image/jpeg" && detected != "image/png" {
		return nil, fmt.Errorf("unsupported photo format: %s (only JPEG and PNG accepted)", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding photo: %w", err)
	}

	img = downscale(img, MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Photo{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// downscale resizes the image so neither dimension exceeds maxDim,
// preserving aspect ratio. Returns the original if already in bounds.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, h*maxDim/w
	if h > w {
		newW, newH = w*maxDim/h, maxDim
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
