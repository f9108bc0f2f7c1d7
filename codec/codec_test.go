package codec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/gogpu/shade/executor"
)

func testImage(w, h uint32) executor.Image {
	img := executor.NewImage(w, h)
	for y := range h {
		for x := range w {
			img.Set(x, y, [4]float32{
				float32((x*40)%256) / 255,
				float32((y*60)%256) / 255,
				float32(((x+y)*25)%256) / 255,
				1,
			})
		}
	}
	return img
}

func maxDiff(a, b executor.Image) float64 {
	var worst float64
	for y := range a.Height {
		for x := range a.Width {
			ca, cb := a.At(x, y), b.At(x, y)
			for i := range 4 {
				worst = math.Max(worst, math.Abs(float64(ca[i]-cb[i])))
			}
		}
	}
	return worst
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"png", PNG, false},
		{".PNG", PNG, false},
		{"jpg", JPEG, false},
		{"JPEG", JPEG, false},
		{"tif", TIFF, false},
		{"bmp", BMP, false},
		{"gif", GIF, false},
		{"webp", WebP, false},
		{"exr", EXR, false},
		{"psd", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupported) {
					t.Fatalf("ParseFormat(%q) error = %v, want ErrUnsupported", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	var pngBuf bytes.Buffer
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	if err := png.Encode(&pngBuf, src); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		data    []byte
		hint    string
		want    Format
		wantErr bool
	}{
		{"png content", pngBuf.Bytes(), "", PNG, false},
		{"content beats hint", pngBuf.Bytes(), "photo.jpg", PNG, false},
		{"exr magic", []byte{0x76, 0x2f, 0x31, 0x01, 0, 0, 0, 0}, "", EXR, false},
		{"hint fallback", []byte("not an image"), "scan.bmp", BMP, false},
		{"unknown", []byte("not an image"), "", "", true},
		{"unknown hint", []byte("not an image"), "notes.txt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.data, tt.hint)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupported) {
					t.Fatalf("Detect error = %v, want ErrUnsupported", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Detect = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestDecodeEXRUnsupported(t *testing.T) {
	_, err := Decode([]byte{0x76, 0x2f, 0x31, 0x01, 2, 0, 0, 0}, "hdr.exr")
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Decode(exr) error = %v, want ErrUnsupported", err)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()/2]
	if _, err := Decode(truncated, ""); err == nil {
		t.Fatal("Decode(truncated png) succeeded")
	}
}

func TestRoundTrip(t *testing.T) {
	img := testImage(7, 5)
	tests := []struct {
		name string
		f    Format
		opts []EncodeOption
		tol  float64
	}{
		{"png", PNG, nil, 0.5 / 255},
		{"png16", PNG, []EncodeOption{WithDepth16()}, 1.0 / 0xffff},
		{"bmp", BMP, nil, 0.5 / 255},
		{"tiff", TIFF, nil, 0.5 / 255},
		{"tiff16", TIFF, []EncodeOption{WithDepth16()}, 1.0 / 0xffff},
		{"jpeg", JPEG, []EncodeOption{WithJPEGQuality(100)}, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeBytes(img, tt.f, tt.opts...)
			if err != nil {
				t.Fatalf("EncodeBytes: %v", err)
			}
			got, err := Decode(data, "")
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Width != img.Width || got.Height != img.Height {
				t.Fatalf("size = %dx%d, want %dx%d", got.Width, got.Height, img.Width, img.Height)
			}
			// 8-bit quantisation truncates, so allow one step.
			if d := maxDiff(got, img); d > tt.tol+1.0/255 {
				t.Errorf("max channel difference = %v", d)
			}
		})
	}
}

func TestEncodeGIF(t *testing.T) {
	img := executor.NewImage(3, 2)
	img.Fill([4]float32{0, 0, 0, 1})
	data, err := EncodeBytes(img, GIF)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	got, err := Decode(data, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Width != 3 || got.Height != 2 {
		t.Fatalf("size = %dx%d, want 3x2", got.Width, got.Height)
	}
	if c := got.At(1, 1); c[0] != 0 || c[3] != 1 {
		t.Errorf("pixel = %v, want opaque black", c)
	}
}

func TestEncodeClamps(t *testing.T) {
	img := executor.NewImage(2, 1)
	img.Set(0, 0, [4]float32{1.5, -0.5, float32(math.NaN()), 1})
	img.Set(1, 0, [4]float32{0.5, 1, 0, 2})
	n := ToNRGBA(img)
	want := []color.NRGBA{{255, 0, 0, 255}, {127, 255, 0, 255}}
	for x, w := range want {
		if got := n.NRGBAAt(x, 0); got != w {
			t.Errorf("pixel %d = %v, want %v", x, got, w)
		}
	}
}

func TestEncodeRejects(t *testing.T) {
	if _, err := EncodeBytes(testImage(1, 1), WebP); !errors.Is(err, ErrUnsupported) {
		t.Errorf("encode webp error = %v, want ErrUnsupported", err)
	}
	if _, err := EncodeBytes(executor.Image{}, PNG); !errors.Is(err, executor.ErrEmptyImage) {
		t.Errorf("encode empty error = %v, want ErrEmptyImage", err)
	}
}

func TestFromImageOffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 20, 12, 21))
	src.Set(11, 20, color.RGBA{255, 0, 0, 255})
	img := FromImage(src)
	if img.Width != 2 || img.Height != 1 {
		t.Fatalf("size = %dx%d, want 2x1", img.Width, img.Height)
	}
	if c := img.At(1, 0); c != [4]float32{1, 0, 0, 1} {
		t.Errorf("At(1,0) = %v, want red", c)
	}
}

func TestContentType(t *testing.T) {
	tests := map[Format]string{
		PNG:  "image/png",
		JPEG: "image/jpeg",
		GIF:  "image/gif",
		BMP:  "image/bmp",
		TIFF: "image/tiff",
	}
	for f, want := range tests {
		if got := f.ContentType(); got != want {
			t.Errorf("%s.ContentType() = %q, want %q", f, got, want)
		}
	}
}

func TestAdvertisedFormats(t *testing.T) {
	for _, name := range OutputFormats() {
		f, err := ParseFormat(name)
		if err != nil || !f.CanEncode() {
			t.Errorf("output format %q not encodable", name)
		}
	}
	for _, name := range InputFormats() {
		if name == "base64" {
			continue
		}
		f, err := ParseFormat(name)
		if err != nil || !f.CanDecode() {
			t.Errorf("input format %q not decodable", name)
		}
	}
}
