package energy

import (
	"fmt"
	"image"
	"math"

	"github.com/cwbudde/markedpoint/internal/geom"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/spatial/r3"
)

// Stack is a grayscale volume with intensities in [0,1]. Voxel (x, y, z)
// is centered at the point (x, y, z), so the stack covers
// [-0.5, W-0.5] × [-0.5, H-0.5] × [-0.5, D-0.5].
type Stack struct {
	Width, Height int
	// Slices holds one row-major Width*Height plane per z.
	Slices [][]float64
}

// Depth returns the number of z slices.
func (s *Stack) Depth() int {
	return len(s.Slices)
}

// At returns the intensity of voxel (x, y, z). Callers must stay in range.
func (s *Stack) At(x, y, z int) float64 {
	return s.Slices[z][y*s.Width+x]
}

// Bounds returns the box covered by the stack.
func (s *Stack) Bounds() geom.Box {
	return geom.Box{
		Min: r3.Vec{X: -0.5, Y: -0.5, Z: -0.5},
		Max: r3.Vec{X: float64(s.Width) - 0.5, Y: float64(s.Height) - 0.5, Z: float64(s.Depth()) - 0.5},
	}
}

// NewImageContext converts each image into a grayscale slice smoothed with a
// Gaussian of the given sigma and stacks them along z. All images must have
// the same size. A sigma of zero skips the blur.
func NewImageContext(images []image.Image, sigma float64) (*Context, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images")
	}
	first := images[0].Bounds()
	st := &Stack{Width: first.Dx(), Height: first.Dy()}
	if st.Width == 0 || st.Height == 0 {
		return nil, fmt.Errorf("image has zero size")
	}

	for i, img := range images {
		b := img.Bounds()
		if b.Dx() != st.Width || b.Dy() != st.Height {
			return nil, fmt.Errorf("slice %d: size %dx%d does not match %dx%d", i, b.Dx(), b.Dy(), st.Width, st.Height)
		}
		gray := imaging.Grayscale(img)
		if sigma > 0 {
			gray = imaging.Blur(gray, sigma)
		}
		plane := make([]float64, st.Width*st.Height)
		for y := 0; y < st.Height; y++ {
			for x := 0; x < st.Width; x++ {
				plane[y*st.Width+x] = float64(gray.Pix[y*gray.Stride+x*4]) / 255
			}
		}
		st.Slices = append(st.Slices, plane)
	}

	return &Context{Domain: st.Bounds(), Stack: st}, nil
}

// Contrast is a data term rewarding marks whose body is brighter than their
// shell. For contrast c = mean(Interior ∪ Core) - mean(Shell) the unary term
// is Weight·(Threshold - c), so well-contrasted marks have negative energy.
type Contrast struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Weight    float64 `json:"weight" yaml:"weight"`
}

func (c Contrast) Unary(m mark.Mark, ctx *Context) (float64, error) {
	if ctx == nil || ctx.Stack == nil {
		return 0, Unrecoverable(fmt.Errorf("contrast energy needs an image stack"))
	}
	st := ctx.Stack
	b, ok := m.Bounds().Intersection(st.Bounds())
	if !ok {
		return 0, fmt.Errorf("mark %d: %w", m.ID(), ErrNoSamples)
	}

	x0, x1 := clampRange(b.Min.X, b.Max.X, st.Width)
	y0, y1 := clampRange(b.Min.Y, b.Max.Y, st.Height)
	z0, z1 := clampRange(b.Min.Z, b.Max.Z, st.Depth())

	var inSum, shellSum float64
	var inN, shellN int
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				switch r := m.Region(r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}); {
				case r.Inside():
					inSum += st.At(x, y, z)
					inN++
				case r == mark.Shell:
					shellSum += st.At(x, y, z)
					shellN++
				}
			}
		}
	}
	if inN == 0 || shellN == 0 {
		return 0, fmt.Errorf("mark %d: inside=%d shell=%d: %w", m.ID(), inN, shellN, ErrNoSamples)
	}

	contrast := inSum/float64(inN) - shellSum/float64(shellN)
	return c.Weight * (c.Threshold - contrast), nil
}

func (Contrast) Binary(mark.Mark, mark.Mark, *Context) (float64, error) {
	return 0, nil
}

// clampRange returns the voxel indices whose centers fall in [lo, hi],
// limited to [0, n-1].
func clampRange(lo, hi float64, n int) (int, int) {
	a := max(int(math.Ceil(lo)), 0)
	b := min(int(math.Floor(hi)), n-1)
	return a, b
}
