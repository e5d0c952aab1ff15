package preprocess

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"

	"github.com/deepfake-detector/api/internal/domain/analysis"
)

const (
	DefaultSize = 224

	OrderBGR = "bgr"
	OrderRGB = "rgb"
)

// Preprocessor resizes a frame to Size x Size with bilinear interpolation and
// lays it out as a [1,3,Size,Size] float32 tensor scaled to [0,1].
type Preprocessor struct {
	size int
	bgr  bool
}

// New returns a Preprocessor. order selects the channel plane order
// (bgr or rgb); size <= 0 means DefaultSize.
func New(size int, order string) (*Preprocessor, error) {
	if size <= 0 {
		size = DefaultSize
	}
	switch strings.ToLower(order) {
	case "", OrderBGR:
		return &Preprocessor{size: size, bgr: true}, nil
	case OrderRGB:
		return &Preprocessor{size: size}, nil
	default:
		return nil, fmt.Errorf("unknown channel order %q", order)
	}
}

func (p *Preprocessor) Preprocess(img image.Image) analysis.Tensor {
	n := p.size
	dst := image.NewRGBA(image.Rect(0, 0, n, n))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := n * n
	data := make([]float32, 3*plane)
	r, g, b := 0, plane, 2*plane
	if p.bgr {
		r, b = b, r
	}
	for y := 0; y < n; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < n; x++ {
			px := row[x*4:]
			i := y*n + x
			data[r+i] = float32(px[0]) / 255
			data[g+i] = float32(px[1]) / 255
			data[b+i] = float32(px[2]) / 255
		}
	}
	return analysis.Tensor{
		Shape: []int64{1, 3, int64(n), int64(n)},
		Data:  data,
	}
}
