package imaging

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Stage parameters. Block size and offset follow the usual adaptive
// thresholding defaults for 300 DPI document scans.
const (
	thresholdBlockSize = 11
	thresholdOffset    = 2
	deskewMinAngle     = 0.5 // degrees; below this, rotation is skipped
	claheClipLimit     = 2.0
	claheTiles         = 8
)

// Config toggles individual preprocessing stages.
type Config struct {
	Deskew   bool
	Denoise  bool
	Enhance  bool
	Binarize bool
}

// Preprocessor applies the OCR preparation chain to a page raster:
// grayscale, deskew, denoise, contrast enhancement, binarization, in that
// order. A stage that fails logs a warning and passes its input through;
// no stage failure is fatal.
type Preprocessor struct {
	cfg    Config
	logger *slog.Logger
}

func NewPreprocessor(cfg Config, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{cfg: cfg, logger: logger}
}

// Preprocess runs the enabled stages. The result has the same dimensions as
// the input and is always grayscale.
func (p *Preprocessor) Preprocess(img image.Image) *image.Gray {
	gray := toGray(img)

	if p.cfg.Deskew {
		gray = p.runStage("deskew", gray, deskew)
	}
	if p.cfg.Denoise {
		gray = p.runStage("denoise", gray, denoise)
	}
	if p.cfg.Enhance {
		gray = p.runStage("enhance", gray, enhanceContrast)
	}
	if p.cfg.Binarize {
		gray = p.runStage("binarize", gray, binarize)
	}
	return gray
}

// runStage isolates a stage: on error or panic the input is returned
// unchanged so one bad page region cannot poison the whole chain.
func (p *Preprocessor) runStage(name string, in *image.Gray, fn func(*image.Gray) (*image.Gray, error)) (out *image.Gray) {
	out = in
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("imaging.stage_panic", "stage", name, "panic", fmt.Sprint(r))
			out = in
		}
	}()
	res, err := fn(in)
	if err != nil {
		p.logger.Warn("imaging.stage_failed", "stage", name, "error", err)
		return in
	}
	return res
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	xdraw.Draw(gray, b, img, b.Min, xdraw.Src)
	return gray
}

// deskew estimates the page skew from the orientation of the thresholded
// foreground and rotates only when the estimate exceeds deskewMinAngle. The
// angle is normalized into (-45, 45] before correction so a portrait page is
// never rotated into landscape.
func deskew(in *image.Gray) (*image.Gray, error) {
	fg := binaryForeground(in)

	var n, sumX, sumY float64
	b := in.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if fg.GrayAt(x, y).Y > 0 {
				n++
				sumX += float64(x)
				sumY += float64(y)
			}
		}
	}
	if n < 64 {
		return nil, fmt.Errorf("no usable foreground for skew estimation")
	}

	meanX, meanY := sumX/n, sumY/n
	var mu20, mu02, mu11 float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if fg.GrayAt(x, y).Y > 0 {
				dx, dy := float64(x)-meanX, float64(y)-meanY
				mu20 += dx * dx
				mu02 += dy * dy
				mu11 += dx * dy
			}
		}
	}

	angle := 0.5 * math.Atan2(2*mu11, mu20-mu02) * 180 / math.Pi
	// normalize into (-45, 45]
	for angle <= -45 {
		angle += 90
	}
	for angle > 45 {
		angle -= 90
	}
	if math.Abs(angle) <= deskewMinAngle {
		return in, nil
	}
	return rotate(in, -angle), nil
}

// rotate rotates about the image center by the given angle in degrees,
// keeping the original dimensions and replicating the background as white.
func rotate(in *image.Gray, degrees float64) *image.Gray {
	b := in.Bounds()
	out := image.NewGray(b)
	for i := range out.Pix {
		out.Pix[i] = 0xff
	}

	theta := degrees * math.Pi / 180
	sin, cos := math.Sin(theta), math.Cos(theta)
	cx := float64(b.Min.X+b.Max.X) / 2
	cy := float64(b.Min.Y+b.Max.Y) / 2

	aff := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	xdraw.BiLinear.Transform(out, aff, in, b, xdraw.Over, nil)
	return out
}

// denoise applies a 3x3 median filter, which removes scan speckle without
// blurring glyph edges.
func denoise(in *image.Gray) (*image.Gray, error) {
	b := in.Bounds()
	out := image.NewGray(b)
	var window [9]uint8

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[k] = grayAtClamped(in, x+dx, y+dy)
					k++
				}
			}
			out.SetGray(x, y, color.Gray{Y: median9(window)})
		}
	}
	return out, nil
}

func median9(w [9]uint8) uint8 {
	// insertion sort; 9 elements
	for i := 1; i < 9; i++ {
		for j := i; j > 0 && w[j-1] > w[j]; j-- {
			w[j-1], w[j] = w[j], w[j-1]
		}
	}
	return w[4]
}

// enhanceContrast applies contrast-limited adaptive histogram equalization
// over an 8x8 tile grid with bilinear blending between tile mappings.
func enhanceContrast(in *image.Gray) (*image.Gray, error) {
	b := in.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < claheTiles || h < claheTiles {
		return nil, fmt.Errorf("image %dx%d too small for %d-tile equalization", w, h, claheTiles)
	}

	tileW := (w + claheTiles - 1) / claheTiles
	tileH := (h + claheTiles - 1) / claheTiles

	// per-tile clipped-histogram lookup tables
	luts := make([][256]uint8, claheTiles*claheTiles)
	for ty := 0; ty < claheTiles; ty++ {
		for tx := 0; tx < claheTiles; tx++ {
			var hist [256]int
			x0, y0 := b.Min.X+tx*tileW, b.Min.Y+ty*tileH
			x1, y1 := min(x0+tileW, b.Max.X), min(y0+tileH, b.Max.Y)
			count := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[in.GrayAt(x, y).Y]++
					count++
				}
			}
			if count == 0 {
				continue
			}

			// clip and redistribute
			clip := int(claheClipLimit * float64(count) / 256)
			if clip < 1 {
				clip = 1
			}
			excess := 0
			for i := range hist {
				if hist[i] > clip {
					excess += hist[i] - clip
					hist[i] = clip
				}
			}
			bonus := excess / 256
			for i := range hist {
				hist[i] += bonus
			}

			// cumulative mapping
			lut := &luts[ty*claheTiles+tx]
			cum := 0
			for i := range hist {
				cum += hist[i]
				lut[i] = uint8(min(255, cum*255/count))
			}
		}
	}

	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			// position relative to tile centers, for bilinear blending
			fx := (float64(x-b.Min.X) - float64(tileW)/2) / float64(tileW)
			fy := (float64(y-b.Min.Y) - float64(tileH)/2) / float64(tileH)
			tx0 := clampInt(int(math.Floor(fx)), 0, claheTiles-1)
			ty0 := clampInt(int(math.Floor(fy)), 0, claheTiles-1)
			tx1 := clampInt(tx0+1, 0, claheTiles-1)
			ty1 := clampInt(ty0+1, 0, claheTiles-1)
			wx := fx - math.Floor(fx)
			wy := fy - math.Floor(fy)
			if fx < 0 {
				wx = 0
			}
			if fy < 0 {
				wy = 0
			}

			v := in.GrayAt(x, y).Y
			top := (1-wx)*float64(luts[ty0*claheTiles+tx0][v]) + wx*float64(luts[ty0*claheTiles+tx1][v])
			bot := (1-wx)*float64(luts[ty1*claheTiles+tx0][v]) + wx*float64(luts[ty1*claheTiles+tx1][v])
			out.SetGray(x, y, color.Gray{Y: uint8((1-wy)*top + wy*bot)})
		}
	}
	return out, nil
}

// binarize applies locally adaptive thresholding: each pixel is compared to
// the mean of its neighborhood minus a small offset, computed via an
// integral image.
func binarize(in *image.Gray) (*image.Gray, error) {
	return adaptiveThreshold(in, 0x00, 0xff), nil
}

// binaryForeground inverts the adaptive threshold so ink pixels are
// non-zero, for skew estimation.
func binaryForeground(in *image.Gray) *image.Gray {
	return adaptiveThreshold(in, 0xff, 0x00)
}

func adaptiveThreshold(in *image.Gray, below, above uint8) *image.Gray {
	b := in.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)

	// integral image with one extra row/column of zeros
	integral := make([]uint64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(in.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}

	half := thresholdBlockSize / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(0, x-half), max(0, y-half)
			x1, y1 := min(w-1, x+half), min(h-1, y+half)
			area := uint64((x1 - x0 + 1) * (y1 - y0 + 1))

			sum := integral[(y1+1)*(w+1)+x1+1] -
				integral[(y0)*(w+1)+x1+1] -
				integral[(y1+1)*(w+1)+x0] +
				integral[(y0)*(w+1)+x0]

			mean := sum / area
			v := uint64(in.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			if v+thresholdOffset < mean {
				out.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: below})
			} else {
				out.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: above})
			}
		}
	}
	return out
}

func grayAtClamped(in *image.Gray, x, y int) uint8 {
	b := in.Bounds()
	x = clampInt(x, b.Min.X, b.Max.X-1)
	y = clampInt(y, b.Min.Y, b.Max.Y-1)
	return in.GrayAt(x, y).Y
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
