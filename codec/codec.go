// Package codec converts between encoded raster files and the
// rgba32float pixel layout processed by the executor.
//
// Decoding sniffs the container with h2non/filetype and decodes through
// disintegration/imaging, honouring EXIF orientation. WebP is decoded via
// golang.org/x/image/webp. Channel values are normalised to [0, 1] without
// any colour space conversion.
//
// Encoding clamps each channel to [0, 1] and quantises to 8 bits, or to
// 16 bits for PNG and TIFF when WithDepth16 is given.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"

	// Register WebP with image.Decode.
	_ "golang.org/x/image/webp"

	"github.com/gogpu/shade/executor"
)

// ErrUnsupported is returned for formats that cannot be decoded or encoded.
var ErrUnsupported = errors.New("codec: unsupported format")

// Decode decodes data into float pixels. hint is an optional file name
// used when the content is not recognised.
func Decode(data []byte, hint string) (executor.Image, error) {
	f, err := Detect(data, hint)
	if err != nil {
		return executor.Image{}, err
	}
	if f == EXR {
		return executor.Image{}, fmt.Errorf("%w: OpenEXR decoding is not available", ErrUnsupported)
	}
	if !f.CanDecode() {
		return executor.Image{}, fmt.Errorf("%w: %s", ErrUnsupported, f)
	}
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return executor.Image{}, fmt.Errorf("codec: decode %s: %w", f, err)
	}
	return FromImage(src), nil
}

// FromImage converts any image.Image to float pixels.
func FromImage(src image.Image) executor.Image {
	b := src.Bounds()
	out := executor.NewImage(uint32(b.Dx()), uint32(b.Dy())) //nolint:gosec // bounds are non-negative
	if nrgba, ok := src.(*image.NRGBA); ok {
		for y := range b.Dy() {
			row := nrgba.Pix[y*nrgba.Stride:]
			for x := range b.Dx() {
				p := row[x*4 : x*4+4]
				out.Set(uint32(x), uint32(y), [4]float32{ //nolint:gosec // loop bounds
					float32(p[0]) / 255,
					float32(p[1]) / 255,
					float32(p[2]) / 255,
					float32(p[3]) / 255,
				})
			}
		}
		return out
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(src.At(x, y)).(color.NRGBA64)
			out.Set(uint32(x-b.Min.X), uint32(y-b.Min.Y), [4]float32{ //nolint:gosec // loop bounds
				float32(c.R) / 0xffff,
				float32(c.G) / 0xffff,
				float32(c.B) / 0xffff,
				float32(c.A) / 0xffff,
			})
		}
	}
	return out
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeOptions)

type encodeOptions struct {
	depth16     bool
	jpegQuality int
}

// WithDepth16 writes 16 bits per channel for PNG and TIFF. Other formats
// ignore it.
func WithDepth16() EncodeOption {
	return func(o *encodeOptions) { o.depth16 = true }
}

// WithJPEGQuality sets the JPEG quality in [1, 100]. The default is 95.
func WithJPEGQuality(q int) EncodeOption {
	return func(o *encodeOptions) {
		if q >= 1 && q <= 100 {
			o.jpegQuality = q
		}
	}
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img executor.Image, f Format, opts ...EncodeOption) error {
	o := encodeOptions{jpegQuality: 95}
	for _, opt := range opts {
		opt(&o)
	}
	if err := img.Validate(); err != nil {
		return err
	}
	if !f.CanEncode() {
		return fmt.Errorf("%w: cannot encode %s", ErrUnsupported, f)
	}

	if o.depth16 && (f == PNG || f == TIFF) {
		deep := ToNRGBA64(img)
		if f == TIFF {
			return tiff.Encode(w, deep, &tiff.Options{Compression: tiff.Deflate})
		}
		return imaging.Encode(w, deep, imaging.PNG)
	}

	var imf imaging.Format
	switch f {
	case PNG:
		imf = imaging.PNG
	case JPEG:
		imf = imaging.JPEG
	case BMP:
		imf = imaging.BMP
	case TIFF:
		imf = imaging.TIFF
	case GIF:
		imf = imaging.GIF
	}
	if err := imaging.Encode(w, ToNRGBA(img), imf, imaging.JPEGQuality(o.jpegQuality)); err != nil {
		return fmt.Errorf("codec: encode %s: %w", f, err)
	}
	return nil
}

// EncodeBytes is Encode into a new byte slice.
func EncodeBytes(img executor.Image, f Format, opts ...EncodeOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToNRGBA quantises img to 8 bits per channel.
func ToNRGBA(img executor.Image) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, int(img.Width), int(img.Height)))
	for y := range img.Height {
		for x := range img.Width {
			c := img.At(x, y)
			i := out.PixOffset(int(x), int(y))
			for ch := range 4 {
				out.Pix[i+ch] = quantize8(c[ch])
			}
		}
	}
	return out
}

// ToNRGBA64 quantises img to 16 bits per channel.
func ToNRGBA64(img executor.Image) *image.NRGBA64 {
	out := image.NewNRGBA64(image.Rect(0, 0, int(img.Width), int(img.Height)))
	for y := range img.Height {
		for x := range img.Width {
			c := img.At(x, y)
			out.SetNRGBA64(int(x), int(y), color.NRGBA64{
				R: quantize16(c[0]),
				G: quantize16(c[1]),
				B: quantize16(c[2]),
				A: quantize16(c[3]),
			})
		}
	}
	return out
}

func quantize8(v float32) uint8 {
	return uint8(clamp01(v) * 255)
}

func quantize16(v float32) uint16 {
	return uint16(clamp01(v) * 0xffff)
}

// clamp01 maps NaN to 0.
func clamp01(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
