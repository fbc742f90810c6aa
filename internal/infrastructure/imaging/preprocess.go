// Package imaging prepares scanned credential images for OCR: grayscale
// conversion, Otsu binarization and non-local-means denoising.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	// Decoders for formats embedded in PDFs or uploaded as scans.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type Options struct {
	// DenoiseStrength is the NL-means filter strength h.
	DenoiseStrength float64
	// TemplateWindow and SearchWindow are odd patch and search sizes.
	TemplateWindow int
	SearchWindow   int
	// UpscaleMinWidth enlarges images narrower than this before OCR. Zero disables.
	UpscaleMinWidth int
	// MaxPixels shrinks larger images before binarization and denoising.
	MaxPixels int
}

func DefaultOptions() Options {
	return Options{
		DenoiseStrength: 10,
		TemplateWindow:  7,
		SearchWindow:    21,
		UpscaleMinWidth: 0,
		MaxPixels:       6_000_000,
	}
}

func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.DenoiseStrength <= 0 {
		o.DenoiseStrength = def.DenoiseStrength
	}
	if o.TemplateWindow <= 0 {
		o.TemplateWindow = def.TemplateWindow
	}
	if o.TemplateWindow%2 == 0 {
		o.TemplateWindow++
	}
	if o.SearchWindow <= 0 {
		o.SearchWindow = def.SearchWindow
	}
	if o.SearchWindow%2 == 0 {
		o.SearchWindow++
	}
	if o.UpscaleMinWidth < 0 {
		o.UpscaleMinWidth = 0
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = def.MaxPixels
	}
	return o
}

type Preprocessor struct {
	opts Options
}

func NewPreprocessor(opts Options) *Preprocessor {
	return &Preprocessor{opts: opts.normalize()}
}

// Prepare decodes raw image bytes and returns a PNG of the cleaned image.
func (p *Preprocessor) Prepare(ctx context.Context, raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	cleaned, err := p.Clean(ctx, img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, cleaned); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Clean runs grayscale, optional upscale, the pixel cap, Otsu binarization
// and NL-means. It stops with ctx's error once ctx is done.
func (p *Preprocessor) Clean(ctx context.Context, img image.Image) (*image.Gray, error) {
	gray := Grayscale(img)
	if p.opts.UpscaleMinWidth > 0 && gray.Bounds().Dx() < p.opts.UpscaleMinWidth {
		gray = Upscale(gray, p.opts.UpscaleMinWidth)
	}
	gray = Downscale(gray, p.opts.MaxPixels)
	binary := Binarize(gray, OtsuThreshold(gray))
	return Denoise(ctx, binary, p.opts.DenoiseStrength, p.opts.TemplateWindow, p.opts.SearchWindow)
}

func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return out
}

// Upscale resizes gray to minWidth keeping the aspect ratio.
func Upscale(gray *image.Gray, minWidth int) *image.Gray {
	b := gray.Bounds()
	if b.Dx() == 0 || b.Dx() >= minWidth {
		return gray
	}
	height := int(math.Round(float64(b.Dy()) * float64(minWidth) / float64(b.Dx())))
	out := image.NewGray(image.Rect(0, 0, minWidth, height))
	draw.CatmullRom.Scale(out, out.Bounds(), gray, b, draw.Src, nil)
	return out
}

// Downscale shrinks gray so it has at most maxPixels pixels, keeping the
// aspect ratio.
func Downscale(gray *image.Gray, maxPixels int) *image.Gray {
	b := gray.Bounds()
	area := b.Dx() * b.Dy()
	if maxPixels <= 0 || area <= maxPixels {
		return gray
	}
	scale := math.Sqrt(float64(maxPixels) / float64(area))
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))
	out := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), gray, b, draw.Src, nil)
	return out
}

// OtsuThreshold picks the global threshold maximizing between-class variance.
func OtsuThreshold(gray *image.Gray) uint8 {
	var hist [256]int
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := gray.Pix[(y-b.Min.Y)*gray.Stride:]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x]]++
		}
	}

	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var (
		sumBg     float64
		weightBg  int
		bestVar   float64
		threshold uint8
	)
	for t := 0; t < 256; t++ {
		weightBg += hist[t]
		if weightBg == 0 {
			continue
		}
		weightFg := total - weightBg
		if weightFg == 0 {
			break
		}
		sumBg += float64(t * hist[t])
		meanBg := sumBg / float64(weightBg)
		meanFg := (sumAll - sumBg) / float64(weightFg)
		between := float64(weightBg) * float64(weightFg) * (meanBg - meanFg) * (meanBg - meanFg)
		if between > bestVar {
			bestVar = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// Binarize maps pixels above threshold to white and the rest to black.
func Binarize(gray *image.Gray, threshold uint8) *image.Gray {
	b := gray.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x, v := range src {
			if v > threshold {
				dst[x] = 255
			}
		}
	}
	return out
}

// Denoise applies non-local-means filtering. The source is padded once by
// replicating its border. For every search offset the squared difference
// image is summed into an integral image so each patch distance costs O(1),
// and weights come from a lookup table instead of exp.
func Denoise(ctx context.Context, gray *image.Gray, h float64, templateWindow, searchWindow int) (*image.Gray, error) {
	b := gray.Bounds()
	w, ht := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, ht))
	if w == 0 || ht == 0 {
		return out, nil
	}
	if h <= 0 {
		for y := 0; y < ht; y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+w], gray.Pix[y*gray.Stride:])
		}
		return out, nil
	}

	tr := templateWindow / 2
	sr := searchWindow / 2
	patch := 2*tr + 1
	pad := tr + sr
	src, sw := padReplicate(gray, pad)
	table := newWeightTable(h, patch*patch)

	// Rows and columns 0 of the integral stay zero.
	iw, ih := w+patch, ht+patch
	integral := make([]int64, iw*ih)
	weights := make([]float32, w*ht)
	sums := make([]float32, w*ht)

	for dy := -sr; dy <= sr; dy++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for dx := -sr; dx <= sr; dx++ {
			for y := 1; y < ih; y++ {
				row := (y - 1 + sr) * sw
				shifted := row + dy*sw + dx
				var rowSum int64
				for x := 1; x < iw; x++ {
					col := x - 1 + sr
					d := int64(src[row+col]) - int64(src[shifted+col])
					rowSum += d * d
					integral[y*iw+x] = integral[(y-1)*iw+x] + rowSum
				}
			}
			for y := 0; y < ht; y++ {
				top, bottom := y*iw, (y+patch)*iw
				neighbor := (y+pad+dy)*sw + pad + dx
				for x := 0; x < w; x++ {
					dist := integral[bottom+x+patch] - integral[top+x+patch] - integral[bottom+x] + integral[top+x]
					wt := table.weight(dist)
					if wt == 0 {
						continue
					}
					idx := y*w + x
					weights[idx] += wt
					sums[idx] += wt * float32(src[neighbor+x])
				}
			}
		}
	}

	for i := range weights {
		v := 0.0
		if weights[i] > 0 {
			v = float64(sums[i] / weights[i])
		}
		out.Pix[(i/w)*out.Stride+i%w] = uint8(clampInt(int(math.Round(v)), 0, 255))
	}
	return out, nil
}

// padReplicate copies gray into a buffer with pad extra pixels on every side,
// filled by repeating the nearest edge pixel. It returns the buffer and its
// row width.
func padReplicate(gray *image.Gray, pad int) ([]uint8, int) {
	b := gray.Bounds()
	w, ht := b.Dx(), b.Dy()
	pw, ph := w+2*pad, ht+2*pad
	out := make([]uint8, pw*ph)
	for y := 0; y < ph; y++ {
		srcRow := gray.Pix[clampInt(y-pad, 0, ht-1)*gray.Stride:]
		dst := out[y*pw : (y+1)*pw]
		left, right := srcRow[0], srcRow[w-1]
		for x := 0; x < pad; x++ {
			dst[x] = left
			dst[pad+w+x] = right
		}
		copy(dst[pad:pad+w], srcRow[:w])
	}
	return out, pw
}

const (
	// Weights below exp(-weightCutoff) are treated as zero.
	weightCutoff    = 30.0
	weightTableSize = 1 << 16
)

// weightTable maps a patch's summed squared difference to
// exp(-(dist/area)/h²), quantized over [0, cutoff].
type weightTable struct {
	scale  float64
	values []float32
}

func newWeightTable(h float64, area int) weightTable {
	limit := weightCutoff * h * h * float64(area)
	values := make([]float32, weightTableSize)
	for i := range values {
		values[i] = float32(math.Exp(-weightCutoff * float64(i) / weightTableSize))
	}
	return weightTable{scale: weightTableSize / limit, values: values}
}

func (t weightTable) weight(dist int64) float32 {
	i := int(float64(dist) * t.scale)
	if i >= len(t.values) {
		return 0
	}
	return t.values[i]
}

// IsBlank reports whether the image has a single intensity everywhere.
func IsBlank(gray *image.Gray) bool {
	b := gray.Bounds()
	if b.Empty() {
		return true
	}
	first := gray.Pix[0]
	for y := 0; y < b.Dy(); y++ {
		for _, v := range gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()] {
			if v != first {
				return false
			}
		}
	}
	return true
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
