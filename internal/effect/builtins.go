package effect

import "github.com/lumencast/engine/internal/frame"

// builtins are grounded in the pixel-math idioms of
// IntuitionAmiga-IntuitionEngine/video_compositor.go (direct uint32 ARGB
// manipulation, alpha-preserving per-channel arithmetic) rather than any
// image/draw convenience path, since the compositor already established that
// style for this codebase.

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

type brightnessContrast struct{}

func (brightnessContrast) ID() string { return "brightness_contrast" }

func (brightnessContrast) ParamSpecs() []ParamSpec {
	return []ParamSpec{
		{Name: "brightness", Kind: KindFloat, Min: -1, Max: 1, Default: 0},
		{Name: "contrast", Kind: KindFloat, Min: -1, Max: 1, Default: 0},
	}
}

func (brightnessContrast) Apply(in *frame.Frame, params map[string]float64) (*frame.Frame, error) {
	brightness := params["brightness"] * 255
	contrast := 1 + params["contrast"]
	if brightness == 0 && contrast == 1 {
		return in, nil
	}
	out := in.Clone()
	for i := 0; i+3 < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float64(out.Pix[i+c])
			v = (v-127.5)*contrast + 127.5 + brightness
			out.Pix[i+c] = clampByte(int(v))
		}
	}
	return out, nil
}

type invert struct{}

func (invert) ID() string           { return "invert" }
func (invert) ParamSpecs() []ParamSpec { return nil }

func (invert) Apply(in *frame.Frame, _ map[string]float64) (*frame.Frame, error) {
	out := in.Clone()
	for i := 0; i+3 < len(out.Pix); i += 4 {
		out.Pix[i] = 255 - out.Pix[i]
		out.Pix[i+1] = 255 - out.Pix[i+1]
		out.Pix[i+2] = 255 - out.Pix[i+2]
		// alpha untouched
	}
	return out, nil
}

type grayscale struct{}

func (grayscale) ID() string { return "grayscale" }

func (grayscale) ParamSpecs() []ParamSpec {
	return []ParamSpec{{Name: "amount", Kind: KindFloat, Min: 0, Max: 1, Default: 1}}
}

func (grayscale) Apply(in *frame.Frame, params map[string]float64) (*frame.Frame, error) {
	amount := params["amount"]
	if amount <= 0 {
		return in, nil
	}
	out := in.Clone()
	for i := 0; i+3 < len(out.Pix); i += 4 {
		r, g, b := float64(out.Pix[i]), float64(out.Pix[i+1]), float64(out.Pix[i+2])
		lum := 0.299*r + 0.587*g + 0.114*b
		out.Pix[i] = clampByte(int(r + (lum-r)*amount))
		out.Pix[i+1] = clampByte(int(g + (lum-g)*amount))
		out.Pix[i+2] = clampByte(int(b + (lum-b)*amount))
	}
	return out, nil
}

// chromaKey punches the alpha channel down to zero for pixels within
// threshold of a key colour, the effect-chain analogue of the alpha-testing
// blend path in video_compositor.go (`srcPixel&0xFF000000 != 0`).
type chromaKey struct{}

func (chromaKey) ID() string { return "chroma_key" }

func (chromaKey) ParamSpecs() []ParamSpec {
	return []ParamSpec{
		{Name: "key_r", Kind: KindFloat, Min: 0, Max: 1, Default: 0},
		{Name: "key_g", Kind: KindFloat, Min: 0, Max: 1, Default: 1},
		{Name: "key_b", Kind: KindFloat, Min: 0, Max: 1, Default: 0},
		{Name: "tolerance", Kind: KindFloat, Min: 0, Max: 1, Default: 0.1},
	}
}

func (chromaKey) Apply(in *frame.Frame, params map[string]float64) (*frame.Frame, error) {
	kr := byte(params["key_r"] * 255)
	kg := byte(params["key_g"] * 255)
	kb := byte(params["key_b"] * 255)
	tol := int(params["tolerance"] * 255)
	out := in.Clone()
	for i := 0; i+3 < len(out.Pix); i += 4 {
		dr := int(out.Pix[i]) - int(kr)
		dg := int(out.Pix[i+1]) - int(kg)
		db := int(out.Pix[i+2]) - int(kb)
		if abs(dr) <= tol && abs(dg) <= tol && abs(db) <= tol {
			out.Pix[i+3] = 0
		}
	}
	return out, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// mirror flips the frame horizontally, vertically, or both.
type mirror struct{}

func (mirror) ID() string { return "mirror" }

func (mirror) ParamSpecs() []ParamSpec {
	return []ParamSpec{
		{Name: "horizontal", Kind: KindBool, Min: 0, Max: 1, Default: 0},
		{Name: "vertical", Kind: KindBool, Min: 0, Max: 1, Default: 0},
	}
}

func (mirror) Apply(in *frame.Frame, params map[string]float64) (*frame.Frame, error) {
	h := params["horizontal"] != 0
	v := params["vertical"] != 0
	if !h && !v {
		return in, nil
	}
	out := frame.New(in.Width, in.Height, in.Format)
	bpp := in.Format.BytesPerPixel()
	for y := 0; y < in.Height; y++ {
		sy := y
		if v {
			sy = in.Height - 1 - y
		}
		for x := 0; x < in.Width; x++ {
			sx := x
			if h {
				sx = in.Width - 1 - x
			}
			srcOff := (sy*in.Width + sx) * bpp
			dstOff := (y*in.Width + x) * bpp
			copy(out.Pix[dstOff:dstOff+bpp], in.Pix[srcOff:srcOff+bpp])
		}
	}
	return out, nil
}
