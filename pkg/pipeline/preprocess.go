package pipeline

import (
	"image"
	"image/color"
	"log"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// Variant is one preprocessed rendition of the source bitmap, identified by
// the strategy that produced it. Variants are computed once and never mutated.
type Variant struct {
	Name string
	Img  *image.NRGBA
}

// PrepareGray converts the source to grayscale and upscales small captures 2x
// with linear interpolation; Tesseract degrades sharply below a minimum
// effective DPI.
func PrepareGray(src image.Image, upscaleBelow int) *image.NRGBA {
	gray := imaging.Grayscale(src)
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	if upscaleBelow > 0 && maxInt(w, h) < upscaleBelow {
		gray = imaging.Resize(gray, w*2, h*2, imaging.Linear)
	}
	return gray
}

// Variants produces the candidate preprocessed bitmaps for OCR. The first
// entry is always the default denoise+adaptive-threshold pipeline; in
// exhaustive mode five more strategies are added, since no single filter wins
// across lighting and skew conditions. A strategy that fails degrades to the
// plain grayscale for its slot instead of sinking the batch.
func Variants(gray *image.NRGBA, exhaustive bool) []Variant {
	adaptive := safeVariant("adaptive", gray, func() *image.NRGBA {
		den := imaging.Clone(effect.Median(gray, 1))
		return adaptiveGaussianThreshold(den, 31, 10)
	})
	out := []Variant{adaptive}
	if !exhaustive {
		return out
	}
	out = append(out,
		safeVariant("bilateral-adaptive", gray, func() *image.NRGBA {
			return adaptiveGaussianThreshold(bilateral(gray, 4, 75, 75), 31, 10)
		}),
		safeVariant("gaussian-otsu", gray, func() *image.NRGBA {
			return otsuThreshold(imaging.Clone(blur.Gaussian(gray, 1.5)))
		}),
		safeVariant("sharpen-otsu", gray, func() *image.NRGBA {
			return otsuThreshold(imaging.Sharpen(gray, 1.0))
		}),
		Variant{Name: "inverted-adaptive", Img: imaging.Invert(adaptive.Img)},
		safeVariant("deskew-otsu", gray, func() *image.NRGBA {
			angle := estimateSkew(gray)
			rot := gray
			if angle != 0 {
				rot = rotateReplicate(gray, angle)
			}
			return otsuThreshold(rot)
		}),
	)
	return out
}

// safeVariant runs one strategy and substitutes the untransformed grayscale
// (zero rotation) when the strategy panics or yields nothing.
func safeVariant(name string, gray *image.NRGBA, fn func() *image.NRGBA) (v Variant) {
	v = Variant{Name: name, Img: gray}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("preprocess variant %s failed: %v", name, r)
		}
	}()
	if img := fn(); img != nil {
		v.Img = img
	}
	return v
}

// adaptiveGaussianThreshold binarizes against a Gaussian-weighted local mean:
// pixels darker than (local mean - bias) become black, the rest white.
func adaptiveGaussianThreshold(img image.Image, block int, bias int) *image.NRGBA {
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}
	mean := blur.Gaussian(img, float64(block/2))
	b := img.Bounds()
	mb := mean.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			pix := int((r + g + bb) / 3 >> 8)
			mr, mg, mv, _ := mean.At(mb.Min.X+x, mb.Min.Y+y).RGBA()
			th := int((mr+mg+mv)/3>>8) - bias
			if th < 0 {
				th = 0
			}
			c := color.NRGBA{255, 255, 255, 255}
			if pix < th {
				c = color.NRGBA{0, 0, 0, 255}
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

// otsuLevel picks the global threshold minimizing intra-class intensity
// variance over the 256-bin histogram.
func otsuLevel(img image.Image) uint8 {
	var hist [256]int
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 128
	}
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			v := int((r + g + bb) / 3 >> 8)
			hist[v]++
			sum += float64(v)
		}
	}
	var sumB, wB float64
	var best float64
	level := uint8(128)
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = uint8(t)
		}
	}
	return level
}

// otsuThreshold binarizes at the Otsu level.
func otsuThreshold(img image.Image) *image.NRGBA {
	level := otsuLevel(img)
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			v := uint8((r + g + bb) / 3 >> 8)
			c := color.NRGBA{255, 255, 255, 255}
			if v <= level {
				c = color.NRGBA{0, 0, 0, 255}
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

// bilateral performs an edge-preserving smoothing pass: spatial Gaussian
// weights attenuated by intensity distance so edges stay crisp while flat
// regions denoise.
func bilateral(img *image.NRGBA, radius int, sigmaColor, sigmaSpace float64) *image.NRGBA {
	if radius < 1 {
		radius = 1
	}
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	// precompute spatial kernel and intensity-distance lookup
	size := radius*2 + 1
	spatial := make([]float64, size*size)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			spatial[(dy+radius)*size+(dx+radius)] = math.Exp(-d2 / (2 * sigmaSpace * sigmaSpace))
		}
	}
	var rangeLUT [256]float64
	for d := 0; d < 256; d++ {
		rangeLUT[d] = math.Exp(-float64(d*d) / (2 * sigmaColor * sigmaColor))
	}
	grayAt := func(x, y int) int {
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		if x >= w {
			x = w - 1
		}
		if y >= h {
			y = h - 1
		}
		return int(img.Pix[y*img.Stride+x*4])
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := grayAt(x, y)
			var acc, norm float64
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					v := grayAt(x+dx, y+dy)
					d := v - center
					if d < 0 {
						d = -d
					}
					wgt := spatial[(dy+radius)*size+(dx+radius)] * rangeLUT[d]
					acc += wgt * float64(v)
					norm += wgt
				}
			}
			v := uint8(acc/norm + 0.5)
			out.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
