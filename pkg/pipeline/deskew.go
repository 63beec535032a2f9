package pipeline

import (
	"image"
	"image/color"
	"math"
	"sort"
)

type point struct{ x, y float64 }

// estimateSkew estimates the text rotation of a grayscale bitmap by fitting a
// minimum-area bounding rectangle around the foreground (dark) pixels of an
// Otsu-binarized copy. The rectangle angle is normalized into (-45, 45]
// degrees. Too few foreground pixels means no reliable estimate: returns 0.
func estimateSkew(gray *image.NRGBA) float64 {
	bin := otsuThreshold(gray)
	w := bin.Bounds().Dx()
	h := bin.Bounds().Dy()
	// subsample to keep the hull input bounded on large captures
	stride := 1
	if w*h > 1_000_000 {
		stride = 3
	}
	var pts []point
	for y := 0; y < h; y += stride {
		row := y * bin.Stride
		for x := 0; x < w; x += stride {
			if bin.Pix[row+x*4] == 0 {
				pts = append(pts, point{float64(x), float64(y)})
			}
		}
	}
	if len(pts) < 50 {
		return 0
	}
	hull := convexHull(pts)
	if len(hull) < 3 {
		return 0
	}
	angle := minAreaRectAngle(hull)
	// fold into (-45, 45]
	angle = math.Mod(angle, 90)
	if angle < 0 {
		angle += 90
	}
	if angle > 45 {
		angle -= 90
	}
	return angle
}

// convexHull computes the convex hull with Andrew's monotone chain,
// counter-clockwise, without the last repeated point.
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	cross := func(o, a, b point) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}
	var lower, upper []point
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// minAreaRectAngle walks the hull edges; the minimum-area enclosing rectangle
// has one side collinear with a hull edge, so testing each edge orientation
// suffices. Returns the winning edge angle in degrees.
func minAreaRectAngle(hull []point) float64 {
	bestArea := math.MaxFloat64
	bestAngle := 0.0
	for i := 0; i < len(hull); i++ {
		p1 := hull[i]
		p2 := hull[(i+1)%len(hull)]
		theta := math.Atan2(p2.y-p1.y, p2.x-p1.x)
		cosT := math.Cos(-theta)
		sinT := math.Sin(-theta)
		minX, minY := math.MaxFloat64, math.MaxFloat64
		maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
		for _, p := range hull {
			rx := p.x*cosT - p.y*sinT
			ry := p.x*sinT + p.y*cosT
			minX = math.Min(minX, rx)
			minY = math.Min(minY, ry)
			maxX = math.Max(maxX, rx)
			maxY = math.Max(maxY, ry)
		}
		area := (maxX - minX) * (maxY - minY)
		if area < bestArea {
			bestArea = area
			bestAngle = theta * 180 / math.Pi
		}
	}
	return bestAngle
}

// rotateReplicate rotates around the image center by deg degrees, sampling
// bilinearly with clamped coordinates so borders replicate edge pixels instead
// of introducing artificial black margins that confuse Tesseract.
func rotateReplicate(img *image.NRGBA, deg float64) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	rad := deg * math.Pi / 180
	cosA := math.Cos(rad)
	sinA := math.Sin(rad)
	cx := float64(w-1) / 2
	cy := float64(h-1) / 2
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	grayAt := func(x, y int) float64 {
		x = clamp(x, 0, w-1)
		y = clamp(y, 0, h-1)
		return float64(img.Pix[y*img.Stride+x*4])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// inverse mapping into the source
			dx := float64(x) - cx
			dy := float64(y) - cy
			sx := dx*cosA + dy*sinA + cx
			sy := -dx*sinA + dy*cosA + cy
			x0 := int(math.Floor(sx))
			y0 := int(math.Floor(sy))
			fx := sx - float64(x0)
			fy := sy - float64(y0)
			top := grayAt(x0, y0)*(1-fx) + grayAt(x0+1, y0)*fx
			bot := grayAt(x0, y0+1)*(1-fx) + grayAt(x0+1, y0+1)*fx
			v := uint8(top*(1-fy) + bot*fy + 0.5)
			out.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return out
}
