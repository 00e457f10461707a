package vision

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

const (
	ImageSize = 224
	Channels  = 3
)

// InputShape is the NHWC shape the detector expects.
var InputShape = [4]int64{1, ImageSize, ImageSize, Channels}

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// Len returns the number of elements implied by Shape.
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// At returns the value at batch 0, row y, column x, channel c.
func (t *Tensor) At(y, x, c int) float32 {
	w := int(t.Shape[2])
	ch := int(t.Shape[3])
	return t.Data[(y*w+x)*ch+c]
}

// Preprocess resizes img to 224x224 with nearest-neighbor sampling (aspect ratio
// is not preserved), scales channels to [0,1] and adds the batch dimension.
// Output pixel (dx, dy) reads source pixel (dx*W/224, dy*H/224), without
// half-pixel centers.
func Preprocess(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, errors.New("preprocess: nil image")
	}
	src := img.Bounds()
	if src.Empty() {
		return nil, errors.New("preprocess: empty image")
	}

	rgba := toNRGBA(img)
	w, h := src.Dx(), src.Dy()

	t := &Tensor{
		Shape: InputShape,
		Data:  make([]float32, ImageSize*ImageSize*Channels),
	}
	i := 0
	for dy := 0; dy < ImageSize; dy++ {
		sy := min(h-1, dy*h/ImageSize)
		row := rgba.Pix[sy*rgba.Stride:]
		for dx := 0; dx < ImageSize; dx++ {
			sx := min(w-1, dx*w/ImageSize)
			p := row[sx*4 : sx*4+3]
			t.Data[i] = float32(p[0]) / 255.0
			t.Data[i+1] = float32(p[1]) / 255.0
			t.Data[i+2] = float32(p[2]) / 255.0
			i += Channels
		}
	}
	return t, nil
}

// toNRGBA returns img as a zero-origin NRGBA image.
func toNRGBA(img image.Image) *image.NRGBA {
	src := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && src.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	return dst
}
