package local

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// sampleSize is the square the image is scaled to before feature extraction.
const sampleSize = 64

const (
	edgeThreshold = 0.1
	darkThreshold = 0.2
)

// Features decodes img and returns its vector in FeatureNames order.
func Features(img []byte) ([]float64, error) {
	src, format, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: empty %s", format)
	}

	dst := image.NewRGBA(image.Rect(0, 0, sampleSize, sampleSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return extract(dst), nil
}

func extract(img *image.RGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	luma := make([]float64, w*h)

	var sr, sg, sb, sl, ssat, dark float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(x, y)
			r, g, bl := unit8(c.R), unit8(c.G), unit8(c.B)
			l := 0.299*r + 0.587*g + 0.114*bl
			luma[y*w+x] = l

			sr += r
			sg += g
			sb += bl
			sl += l
			ssat += saturation(c)
			if l < darkThreshold {
				dark++
			}
		}
	}

	var edges float64
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			l := luma[y*w+x]
			grad := abs(l-luma[y*w+x+1]) + abs(l-luma[(y+1)*w+x])
			if grad > edgeThreshold {
				edges++
			}
		}
	}

	n := float64(w * h)
	return []float64{
		sr / n, sg / n, sb / n,
		sl / n,
		ssat / n,
		edges / float64((w-1)*(h-1)),
		dark / n,
	}
}

// saturation is the HSV S channel in [0,1].
func saturation(c color.RGBA) float64 {
	mx := max(c.R, c.G, c.B)
	mn := min(c.R, c.G, c.B)
	if mx == 0 {
		return 0
	}
	return float64(mx-mn) / float64(mx)
}

func unit8(v uint8) float64 { return float64(v) / 255 }

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
