// Package imaging shrinks raw generated images into compact embeddable
// representations. Opaque images are re-encoded as JPEG, images with
// transparency as PNG, and the result is exposed as a base64 data URI ready
// for inline substitution.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
)

// Optimized is the embeddable form of one image.
type Optimized struct {
	Data     []byte
	DataURI  string
	MIMEType string
	Width    int
	Height   int
	ByteSize int
}

// Optimizer re-encodes raw image bytes within a dimension budget.
type Optimizer struct {
	maxDimension int
	jpegQuality  int
}

// NewOptimizer creates an optimizer. maxDimension caps both axes (default
// 512); jpegQuality applies to opaque re-encodes (default 85).
func NewOptimizer(maxDimension, jpegQuality int) *Optimizer {
	if maxDimension <= 0 {
		maxDimension = 512
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	return &Optimizer{maxDimension: maxDimension, jpegQuality: jpegQuality}
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	jpegMagic = []byte{0xff, 0xd8}
)

// sniffFormat identifies the input encoding from magic bytes.
func sniffFormat(raw []byte) string {
	switch {
	case bytes.HasPrefix(raw, pngMagic):
		return "png"
	case bytes.HasPrefix(raw, jpegMagic):
		return "jpeg"
	}
	return ""
}

// Optimize decodes raw, downscales it so neither dimension exceeds the
// configured maximum (preserving aspect ratio), and re-encodes it. The
// operation is idempotent in dimensions: optimizing an already-optimized
// image shrinks nothing further.
func (o *Optimizer) Optimize(raw []byte) (*Optimized, error) {
	format := sniffFormat(raw)
	if format == "" {
		return nil, &ferrors.UnsupportedImageFormatError{Detail: "unrecognized magic bytes"}
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &ferrors.UnsupportedImageFormatError{Detail: fmt.Sprintf("decode %s: %v", format, err)}
	}

	img := o.downscale(src)
	bounds := img.Bounds()

	var buf bytes.Buffer
	mime := "image/jpeg"
	if hasTransparency(img) {
		mime = "image/png"
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	} else {
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.jpegQuality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	}

	data := buf.Bytes()
	return &Optimized{
		Data:     data,
		DataURI:  toDataURI(mime, data),
		MIMEType: mime,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		ByteSize: len(data),
	}, nil
}

// downscale resizes src so max(width, height) <= maxDimension. Images
// already inside the budget pass through untouched.
func (o *Optimizer) downscale(src image.Image) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= o.maxDimension {
		return src
	}

	ratio := float64(o.maxDimension) / float64(longest)
	nw := int(float64(w) * ratio)
	nh := int(float64(h) * ratio)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

// hasTransparency reports whether any pixel is not fully opaque. Fully
// opaque alpha-model images still qualify for JPEG.
func hasTransparency(img image.Image) bool {
	switch im := img.(type) {
	case *image.RGBA:
		for i := 3; i < len(im.Pix); i += 4 {
			if im.Pix[i] != 0xff {
				return true
			}
		}
		return false
	case *image.NRGBA:
		for i := 3; i < len(im.Pix); i += 4 {
			if im.Pix[i] != 0xff {
				return true
			}
		}
		return false
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

func toDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
