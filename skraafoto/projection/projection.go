// Package projection maps 3-D ground points to 2-D pixel locations inside an
// oblique photograph using the central-perspective (collinearity) camera
// model.
package projection

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/example/go-skraafoto/skraafoto/model"
)

// ErrDegenerateGeometry is returned when the projection denominator
// vanishes, which happens when the ground point sits in the plane through
// the perspective center parallel to the sensor. No meaningful pixel exists
// for such a point.
var ErrDegenerateGeometry = errors.New("projection: degenerate geometry")

// Project maps the ground point (X, Y, Z) in EPSG:25832 onto a pixel inside
// the photo described by cam. The returned pixel coordinate has its origin
// in the bottom-left corner of the image, column positive rightward and row
// positive upward.
//
// Missing or non-finite camera parameters and a vanishing denominator are
// reported as errors rather than silently mapped to the image origin, so a
// caller can always tell "no answer" from "pixel (0,0)".
func Project(cam model.CameraOrientation, X, Y, Z float64) (model.ImagePixelCoordinate, error) {
	if err := cam.Validate(); err != nil {
		return model.ImagePixelCoordinate{}, fmt.Errorf("projection: %w", err)
	}
	for _, v := range []float64{X, Y, Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.ImagePixelCoordinate{}, fmt.Errorf("projection: ground point is not finite")
		}
	}

	// Interior orientation. The focal length sign flips because the sensor
	// plane sits behind the perspective center, and the half-sensor extents
	// shift the principal point to the bottom-left pixel origin.
	c := -cam.FocalLength
	pix := cam.PixelSpacing
	dimX := -float64(cam.SensorColumns) * pix / 2
	dimY := -float64(cam.SensorRows) * pix / 2

	rot := rotationMatrix(radians(cam.Omega), radians(cam.Phi), radians(cam.Kappa))

	offset := mat.NewVecDense(3, []float64{
		X - cam.PerspectiveCenter[0],
		Y - cam.PerspectiveCenter[1],
		Z - cam.PerspectiveCenter[2],
	})

	// The collinearity equations need column-wise dot products of the
	// rotation matrix with the ground offset, i.e. Dᵀ·d.
	var uvw mat.VecDense
	uvw.MulVec(rot.T(), offset)

	w := uvw.AtVec(2)
	if w == 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return model.ImagePixelCoordinate{}, fmt.Errorf("%w: denominator is zero for point (%v, %v, %v)", ErrDegenerateGeometry, X, Y, Z)
	}

	xDot := -c * uvw.AtVec(0) / w
	yDot := -c * uvw.AtVec(1) / w

	col := -((xDot - cam.PrincipalPointOffsetX) + dimX) / pix
	row := -((yDot - cam.PrincipalPointOffsetY) + dimY) / pix
	return model.ImagePixelCoordinate{
		Column: int(math.Round(col)),
		Row:    int(math.Round(row)),
	}, nil
}

// rotationMatrix builds the omega-phi-kappa rotation from camera angles in
// radians.
func rotationMatrix(o, p, k float64) *mat.Dense {
	sinO, cosO := math.Sin(o), math.Cos(o)
	sinP, cosP := math.Sin(p), math.Cos(p)
	sinK, cosK := math.Sin(k), math.Cos(k)

	return mat.NewDense(3, 3, []float64{
		cosP * cosK, -cosP * sinK, sinP,
		cosO*sinK + sinO*sinP*cosK, cosO*cosK - sinO*sinP*sinK, -sinO * cosP,
		sinO*sinK - cosO*sinP*cosK, sinO*cosK + cosO*sinP*sinK, cosO * cosP,
	})
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
