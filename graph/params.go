package graph

// Params is the parameter payload of a node. Each concrete type belongs to
// exactly one Kind; a node only accepts params whose Kind matches its own.
type Params interface {
	Kind() Kind
}

// Input marks the pipeline entry point. It carries no parameters.
type Input struct{}

// Output marks the pipeline exit point. It carries no parameters.
type Output struct{}

// Brightness adds Value to each color channel. 0 is no change.
type Brightness struct{ Value float32 }

// Contrast scales each channel around mid gray. 1 is no change.
type Contrast struct{ Value float32 }

// Saturation scales chroma relative to luminance. 1 is no change.
type Saturation struct{ Value float32 }

// Hue rotates the hue by Degrees. 0 is no change.
type Hue struct{ Degrees float32 }

// Gamma applies out = in^(1/Value). 1 is no change.
type Gamma struct{ Value float32 }

// Levels remaps [InBlack, InWhite] to [OutBlack, OutWhite].
type Levels struct {
	InBlack  float32
	InWhite  float32
	OutBlack float32
	OutWhite float32
}

// ColorBalance multiplies shadows, midtones and highlights by per-channel
// RGB gains. All ones is no change.
type ColorBalance struct {
	Shadows    [3]float32
	Midtones   [3]float32
	Highlights [3]float32
}

// WhiteBalance shifts temperature (blue to yellow) and tint (green to
// magenta). When Auto is set the shader derives the correction from the
// image itself and ignores Temperature and Tint.
type WhiteBalance struct {
	Auto        bool
	Temperature float32
	Tint        float32
}

// Blur is a box blur with the given radius in pixels.
type Blur struct{ Radius float32 }

// Sharpen is an unsharp mask of the given strength.
type Sharpen struct{ Amount float32 }

// Noise adds deterministic per-pixel noise.
type Noise struct {
	Amount float32
	Seed   uint32
}

// Resize scales the image. A zero Width or Height is unset: with one side
// set the other follows the aspect ratio, with neither the image passes
// through.
type Resize struct {
	Width  uint32
	Height uint32
}

// Crop keeps the rectangle (X, Y, Width, Height) and clears everything
// outside it to transparent black. Dimensions are preserved.
type Crop struct {
	X      float32
	Y      float32
	Width  float32
	Height float32
}

// Mix blends image1 toward image2 by Factor.
type Mix struct{ Factor float32 }

// Mask multiplies color by alpha.
type Mask struct{}

// Invert replaces each color channel c with 1-c.
type Invert struct{}

func (Input) Kind() Kind        { return KindInput }
func (Output) Kind() Kind       { return KindOutput }
func (Brightness) Kind() Kind   { return KindBrightness }
func (Contrast) Kind() Kind     { return KindContrast }
func (Saturation) Kind() Kind   { return KindSaturation }
func (Hue) Kind() Kind          { return KindHue }
func (Gamma) Kind() Kind        { return KindGamma }
func (Levels) Kind() Kind       { return KindLevels }
func (ColorBalance) Kind() Kind { return KindColorBalance }
func (WhiteBalance) Kind() Kind { return KindWhiteBalance }
func (Blur) Kind() Kind         { return KindBlur }
func (Sharpen) Kind() Kind      { return KindSharpen }
func (Noise) Kind() Kind        { return KindNoise }
func (Resize) Kind() Kind       { return KindResize }
func (Crop) Kind() Kind         { return KindCrop }
func (Mix) Kind() Kind          { return KindMix }
func (Mask) Kind() Kind         { return KindMask }
func (Invert) Kind() Kind       { return KindInvert }

// DefaultNoiseSeed is the seed used when a request does not supply one.
const DefaultNoiseSeed = 42

// DefaultParams returns the parameters a freshly added node of kind k
// starts with.
func DefaultParams(k Kind) Params {
	switch k {
	case KindInput:
		return Input{}
	case KindOutput:
		return Output{}
	case KindBrightness:
		return Brightness{Value: 0}
	case KindContrast:
		return Contrast{Value: 1}
	case KindSaturation:
		return Saturation{Value: 1}
	case KindHue:
		return Hue{Degrees: 0}
	case KindGamma:
		return Gamma{Value: 1}
	case KindLevels:
		return Levels{InBlack: 0, InWhite: 1, OutBlack: 0, OutWhite: 1}
	case KindColorBalance:
		return ColorBalance{
			Shadows:    [3]float32{1, 1, 1},
			Midtones:   [3]float32{1, 1, 1},
			Highlights: [3]float32{1, 1, 1},
		}
	case KindWhiteBalance:
		return WhiteBalance{}
	case KindBlur:
		return Blur{Radius: 1}
	case KindSharpen:
		return Sharpen{Amount: 1}
	case KindNoise:
		return Noise{Amount: 0.1, Seed: DefaultNoiseSeed}
	case KindResize:
		return Resize{}
	case KindCrop:
		return Crop{X: 0, Y: 0, Width: 512, Height: 512}
	case KindMix:
		return Mix{Factor: 0.5}
	case KindMask:
		return Mask{}
	case KindInvert:
		return Invert{}
	default:
		return nil
	}
}
