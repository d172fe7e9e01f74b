package server

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/cwbudde/markedpoint/internal/mark"
)

var outlineColor = color.NRGBA{R: 255, A: 255}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// loadReferenceImage loads the first slice of a job as NRGBA.
func loadReferenceImage(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return imaging.Clone(img), nil
}

// drawOutlines paints the projection of every mark onto the xy plane.
// Pixel centers sit at integer coordinates.
func drawOutlines(dst *image.NRGBA, records []mark.Record) {
	for _, r := range records {
		switch r.Kind {
		case mark.KindEllipse, mark.KindEllipsoid:
			drawEllipse(dst, r.Center[0], r.Center[1], r.Radii[0], r.Radii[1], r.Angles[0])
		case mark.KindPointCloud:
			for _, p := range r.Points {
				setPixel(dst, p[0], p[1])
			}
		}
	}
}

func drawEllipse(dst *image.NRGBA, cx, cy, a, b, theta float64) {
	// One sample per pixel of circumference, at least 16.
	steps := int(math.Max(16, math.Ceil(2*math.Pi*math.Max(a, b))))
	sin, cos := math.Sincos(theta)
	for i := 0; i < steps; i++ {
		t := 2 * math.Pi * float64(i) / float64(steps)
		x, y := a*math.Cos(t), b*math.Sin(t)
		setPixel(dst, cx+x*cos-y*sin, cy+x*sin+y*cos)
	}
}

func setPixel(dst *image.NRGBA, x, y float64) {
	p := image.Pt(int(math.Round(x)), int(math.Round(y)))
	if p.In(dst.Bounds()) {
		dst.SetNRGBA(p.X, p.Y, outlineColor)
	}
}
