package codec

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Format is a raster container format.
type Format string

// Known formats. EXR is recognised so it can be rejected clearly.
const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	GIF  Format = "gif"
	WebP Format = "webp"
	EXR  Format = "exr"
)

// exrMagic is the OpenEXR file signature.
var exrMagic = []byte{0x76, 0x2f, 0x31, 0x01}

// ParseFormat maps a format name or file extension to a Format.
// A leading dot and letter case are ignored.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	switch s {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	case "gif":
		return GIF, nil
	case "webp":
		return WebP, nil
	case "exr":
		return EXR, nil
	}
	return "", fmt.Errorf("%w: format %q", ErrUnsupported, s)
}

// FormatFromPath returns the format implied by a file name's extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// CanEncode reports whether Encode supports f.
func (f Format) CanEncode() bool {
	switch f {
	case PNG, JPEG, BMP, TIFF, GIF:
		return true
	}
	return false
}

// CanDecode reports whether Decode supports f.
func (f Format) CanDecode() bool {
	return f.CanEncode() || f == WebP
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	ext := string(f)
	switch f {
	case JPEG:
		ext = "jpg"
	case TIFF:
		ext = "tif"
	}
	if t := filetype.GetType(ext); t != filetype.Unknown {
		return t.MIME.Value
	}
	if f == EXR {
		return "image/x-exr"
	}
	return "application/octet-stream"
}

// InputFormats lists the names accepted by Decode as they are advertised
// to clients. base64 is the inline transport encoding.
func InputFormats() []string {
	return []string{"png", "jpg", "jpeg", "bmp", "tiff", "gif", "webp", "base64"}
}

// OutputFormats lists the names accepted by Encode.
func OutputFormats() []string {
	return []string{"png", "jpg", "jpeg", "bmp", "tiff", "gif"}
}

// Detect identifies the container format of data. Content sniffing wins
// over hint, a file name whose extension is used when the bytes are not
// recognised.
func Detect(data []byte, hint string) (Format, error) {
	if len(data) >= len(exrMagic) && string(data[:len(exrMagic)]) == string(exrMagic) {
		return EXR, nil
	}
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		if f, err := ParseFormat(kind.Extension); err == nil {
			return f, nil
		}
		return "", fmt.Errorf("%w: %s content", ErrUnsupported, kind.MIME.Value)
	}
	if hint != "" {
		if f, err := FormatFromPath(hint); err == nil {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognised image data", ErrUnsupported)
}
