package graph

import (
	"fmt"
)

// Kind identifies the operation a node performs.
// The set is closed: every switch over Kind in this module is exhaustive.
type Kind uint8

// Operation kinds.
const (
	KindInput Kind = iota
	KindOutput
	KindBrightness
	KindContrast
	KindSaturation
	KindHue
	KindGamma
	KindLevels
	KindColorBalance
	KindWhiteBalance
	KindBlur
	KindSharpen
	KindNoise
	KindResize
	KindCrop
	KindMix
	KindMask
	KindInvert

	kindCount
)

// Port names shared by all kinds.
const (
	PortImage  = "image"
	PortImage1 = "image1"
	PortImage2 = "image2"
)

var kindNames = [kindCount]string{
	KindInput:        "input",
	KindOutput:       "output",
	KindBrightness:   "brightness",
	KindContrast:     "contrast",
	KindSaturation:   "saturation",
	KindHue:          "hue",
	KindGamma:        "gamma",
	KindLevels:       "levels",
	KindColorBalance: "color_balance",
	KindWhiteBalance: "white_balance",
	KindBlur:         "blur",
	KindSharpen:      "sharpen",
	KindNoise:        "noise",
	KindResize:       "resize",
	KindCrop:         "crop",
	KindMix:          "mix",
	KindMask:         "mask",
	KindInvert:       "invert",
}

// String returns the wire name of the kind, e.g. "white_balance".
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool { return k < kindCount }

// ParseKind returns the kind with the given wire name.
func ParseKind(name string) (Kind, error) {
	for k := Kind(0); k < kindCount; k++ {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Kinds returns every defined kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Operations returns the kinds that transform pixels, skipping the
// Input and Output endpoints.
func Operations() []Kind {
	out := make([]Kind, 0, kindCount-2)
	for k := KindBrightness; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// InputPorts returns the fixed input port names for the kind.
func (k Kind) InputPorts() []string {
	switch k {
	case KindInput:
		return nil
	case KindMix:
		return []string{PortImage1, PortImage2}
	default:
		return []string{PortImage}
	}
}

// OutputPorts returns the fixed output port names for the kind.
func (k Kind) OutputPorts() []string {
	if k == KindOutput {
		return nil
	}
	return []string{PortImage}
}

// ChangesDimensions reports whether a node of this kind may produce an
// image with different dimensions from its input.
func (k Kind) ChangesDimensions() bool { return k == KindResize }
