package document

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// Preprocessor is the deterministic per-page cleanup stage. It holds no
// learned parameters and no state; identical input always yields identical
// output.
type Preprocessor struct{}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{}
}

// Apply runs the cleanup chain on one page:
//  1. single-channel grayscale
//  2. binarization with an Otsu-selected global threshold, since scan
//     brightness varies document to document
//  3. median denoise to suppress scan artifacts that otherwise become
//     OCR noise characters
func (p *Preprocessor) Apply(img image.Image) image.Image {
	gray := effect.Grayscale(img)
	bin := segment.Threshold(gray, otsuLevel(gray))
	return effect.Median(bin, 3)
}

// otsuLevel picks the threshold that maximizes between-class variance over
// the luminance histogram. The input is already grayscaled, so all channels
// are equal and reading one of them is enough.
func otsuLevel(g *image.RGBA) uint8 {
	var hist [256]int
	bounds := g.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 128
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := g.Pix[(y-bounds.Min.Y)*g.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			hist[row[x*4]]++
		}
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, wB float64
	var maxVar float64
	var level uint8
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
		if between > maxVar {
			maxVar = between
			level = uint8(t)
		}
	}
	return level
}
