package projection

import (
	"errors"
	"math"
	"testing"

	"github.com/example/go-skraafoto/skraafoto/model"
)

func nadirCamera() model.CameraOrientation {
	return model.CameraOrientation{
		FocalLength:       50,
		PixelSpacing:      0.006,
		SensorColumns:     8000,
		SensorRows:        6000,
		PerspectiveCenter: [3]float64{728000, 6174000, 1500},
	}
}

func TestProjectPerspectiveCenterHitsImageCenter(t *testing.T) {
	cam := nadirCamera()
	// A ground point straight below a level camera lands on the principal
	// point, which with a zero offset is the image center.
	pixel, err := Project(cam, 728000, 6174000, 500)
	if err != nil {
		t.Fatalf("Project returned error: %v", err)
	}
	if pixel.Column != 4000 || pixel.Row != 3000 {
		t.Fatalf("expected (4000, 3000), got (%d, %d)", pixel.Column, pixel.Row)
	}
}

func TestProjectEastOffset(t *testing.T) {
	cam := nadirCamera()
	// 10 m east at 1000 m below the camera scales by -c/w = 50/1000.
	pixel, err := Project(cam, 728010, 6174000, 500)
	if err != nil {
		t.Fatalf("Project returned error: %v", err)
	}
	if pixel.Column != 4083 {
		t.Fatalf("expected column 4083, got %d", pixel.Column)
	}
	if pixel.Row != 3000 {
		t.Fatalf("expected row 3000, got %d", pixel.Row)
	}
}

func TestProjectPrincipalPointOffsetShiftsResult(t *testing.T) {
	cam := nadirCamera()
	cam.PrincipalPointOffsetX = 0.006
	pixel, err := Project(cam, 728000, 6174000, 500)
	if err != nil {
		t.Fatalf("Project returned error: %v", err)
	}
	// One pixel spacing of offset moves the result by one column.
	if pixel.Column != 4001 {
		t.Fatalf("expected column 4001, got %d", pixel.Column)
	}
}

func TestProjectDegeneratePoint(t *testing.T) {
	cam := nadirCamera()
	// A ground point at the camera height has w == 0 and no projection.
	_, err := Project(cam, 728000, 6174000, 1500)
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("expected ErrDegenerateGeometry, got %v", err)
	}
}

func TestProjectRejectsInvalidCamera(t *testing.T) {
	cam := nadirCamera()
	cam.PixelSpacing = 0
	if _, err := Project(cam, 728000, 6174000, 500); err == nil {
		t.Fatal("expected an error for an invalid camera")
	}
}

func TestProjectRejectsNonFiniteGroundPoint(t *testing.T) {
	cam := nadirCamera()
	if _, err := Project(cam, math.NaN(), 6174000, 500); err == nil {
		t.Fatal("expected an error for a non-finite ground point")
	}
}
