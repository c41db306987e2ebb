package camera

import (
	"stillcam/camera/params"
	"stillcam/mmal"
)

// PatternPixel returns the test pattern colour at column x, row y.
func PatternPixel(x, y int) (r, g, b byte) {
	return byte(x % 256), byte(y % 256), byte((x * y) % 256)
}

func luma(r, g, b byte) byte {
	return byte((77*int(r) + 150*int(g) + 29*int(b)) >> 8)
}

func clampByte(v int) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return byte(v)
}

// RenderPattern renders the sensor test pattern in format f with the image
// parameters applied. Formats without a pixel layout get an empty payload.
func RenderPattern(f mmal.Format, p params.Parameters) []byte {
	w, h := f.Width, f.Height
	out := make([]byte, f.FrameSize())
	if f.Encoding != mmal.EncodingRGB24 && f.Encoding != mmal.EncodingI420 {
		return out
	}
	hflip, vflip := p.HFlip, p.VFlip
	if (p.Rotation+45)/90%4 == 2 {
		hflip, vflip = !hflip, !vflip
	}
	shift := (p.Brightness - 50) * 2
	negative := p.ImageEffect == params.EffectNegative

	pixel := func(x, y int) (byte, byte, byte) {
		if hflip {
			x = w - 1 - x
		}
		if vflip {
			y = h - 1 - y
		}
		r, g, b := PatternPixel(x, y)
		if shift != 0 {
			r, g, b = clampByte(int(r)+shift), clampByte(int(g)+shift), clampByte(int(b)+shift)
		}
		if negative {
			r, g, b = 255-r, 255-g, 255-b
		}
		return r, g, b
	}

	if f.Encoding == mmal.EncodingRGB24 {
		i := 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[i], out[i+1], out[i+2] = pixel(x, y)
				i += 3
			}
		}
		return out
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = luma(pixel(x, y))
		}
	}
	u, v := byte(128), byte(128)
	if p.ColourEffects.Enable {
		u, v = byte(p.ColourEffects.U), byte(p.ColourEffects.V)
	}
	chroma := out[w*h:]
	half := len(chroma) / 2
	for i := range chroma {
		if i < half {
			chroma[i] = u
		} else {
			chroma[i] = v
		}
	}
	return out
}
