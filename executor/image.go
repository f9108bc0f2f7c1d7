package executor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BytesPerPixel is the size of one rgba32float pixel.
const BytesPerPixel = 16

// Image is a tightly packed rgba32float image. Pix holds Width*Height
// pixels of four little-endian float32 channels, row-major.
type Image struct {
	Pix    []byte
	Width  uint32
	Height uint32
}

// NewImage returns a zeroed image.
func NewImage(width, height uint32) Image {
	return Image{
		Pix:    make([]byte, int(width)*int(height)*BytesPerPixel),
		Width:  width,
		Height: height,
	}
}

// Validate reports whether the buffer length matches the dimensions.
func (img Image) Validate() error {
	if img.Width == 0 || img.Height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyImage, img.Width, img.Height)
	}
	if want := int(img.Width) * int(img.Height) * BytesPerPixel; len(img.Pix) != want {
		return fmt.Errorf("executor: image %dx%d has %d bytes, want %d",
			img.Width, img.Height, len(img.Pix), want)
	}
	return nil
}

// At returns the pixel at (x, y).
func (img Image) At(x, y uint32) [4]float32 {
	o := (int(y)*int(img.Width) + int(x)) * BytesPerPixel
	var c [4]float32
	for i := range c {
		c[i] = math.Float32frombits(binary.LittleEndian.Uint32(img.Pix[o+i*4:]))
	}
	return c
}

// Set writes the pixel at (x, y).
func (img Image) Set(x, y uint32, c [4]float32) {
	o := (int(y)*int(img.Width) + int(x)) * BytesPerPixel
	for i, v := range c {
		binary.LittleEndian.PutUint32(img.Pix[o+i*4:], math.Float32bits(v))
	}
}

// Fill sets every pixel to c.
func (img Image) Fill(c [4]float32) {
	var px [BytesPerPixel]byte
	for i, v := range c {
		binary.LittleEndian.PutUint32(px[i*4:], math.Float32bits(v))
	}
	for o := 0; o < len(img.Pix); o += BytesPerPixel {
		copy(img.Pix[o:], px[:])
	}
}

// sub copies the w x h region at (x, y) into a new image.
func (img Image) sub(x, y, w, h uint32) Image {
	out := NewImage(w, h)
	rowBytes := int(w) * BytesPerPixel
	for row := range int(h) {
		so := ((int(y)+row)*int(img.Width) + int(x)) * BytesPerPixel
		copy(out.Pix[row*rowBytes:(row+1)*rowBytes], img.Pix[so:so+rowBytes])
	}
	return out
}

// paste copies tile into img at (x, y), row by row.
func (img Image) paste(tile Image, x, y uint32) {
	rowBytes := int(tile.Width) * BytesPerPixel
	for row := range int(tile.Height) {
		do := ((int(y)+row)*int(img.Width) + int(x)) * BytesPerPixel
		copy(img.Pix[do:do+rowBytes], tile.Pix[row*rowBytes:(row+1)*rowBytes])
	}
}
