package dpm

import (
	"fmt"
	"math"

	"udesign/pkg/design"
	"udesign/pkg/optics"
)

// magnification4fMinimum requires the 4f magnification to reach the sampling
// minimum in absolute value.
type magnification4fMinimum struct{}

func (magnification4fMinimum) Name() string { return "4f_magnification_minimum" }

func (magnification4fMinimum) Check(view design.Review) (string, bool) {
	actual := math.Abs(view.Result("4f_magnification").Magnitude)
	minimum := math.Abs(view.Result("minimum_4f_magnification").Magnitude)
	if actual < minimum {
		return fmt.Sprintf("Absolute value of 4f magnification is less than the minimum requirement: Minimum: %g, Actual: %g", minimum, actual), true
	}
	return "", false
}

// lens1NAMinimum requires the first Fourier lens to pass the +1 order.
type lens1NAMinimum struct{}

func (lens1NAMinimum) Name() string { return "lens_1_na_minimum" }

func (lens1NAMinimum) Check(view design.Review) (string, bool) {
	actual := view.Result("lens_1_na").Magnitude
	minimum := view.Result("minimum_lens_1_na").Magnitude
	if actual < minimum {
		return fmt.Sprintf("NA of lens 1 is less than the minimum requirement: Minimum: %g, Actual: %g", minimum, actual), true
	}
	return "", false
}

// lens2NAMinimum requires the second Fourier lens to pass the +1 order.
type lens2NAMinimum struct{}

func (lens2NAMinimum) Name() string { return "lens_2_na_minimum" }

func (lens2NAMinimum) Check(view design.Review) (string, bool) {
	actual := view.Result("lens_2_na").Magnitude
	minimum := view.Result("minimum_lens_2_na").Magnitude
	if actual < minimum {
		return fmt.Sprintf("NA of lens 2 is less than the minimum requirement: Minimum: %g, Actual: %g", minimum, actual), true
	}
	return "", false
}

// pinholeDiameterMaximum keeps the reference beam uniform across the camera.
type pinholeDiameterMaximum struct{}

func (pinholeDiameterMaximum) Name() string { return "pinhole_diameter_maximum" }

func (pinholeDiameterMaximum) Check(view design.Review) (string, bool) {
	um := optics.NewQuantity(1, optics.Micrometer).SI()
	actual := view.Input("pinhole.diameter").SI() / um
	maximum := view.Result("maximum_pinhole_diameter").SI() / um
	if actual > maximum {
		return fmt.Sprintf("Pinhole diameter exceeds the maximum requirement: Maximum %g um, Actual: %g um", maximum, actual), true
	}
	return "", false
}

// pixelSizeMaximum enforces the fringe sampling bound on the camera pixel.
type pixelSizeMaximum struct{}

func (pixelSizeMaximum) Name() string { return "pixel_size_maximum" }

func (pixelSizeMaximum) Check(view design.Review) (string, bool) {
	um := optics.NewQuantity(1, optics.Micrometer).SI()
	actual := view.Input("camera.pixel_size").SI() / um
	maximum := view.Result("maximum_pixel_size").SI() / um
	if actual > maximum {
		return fmt.Sprintf("Pixel size exceeds the maximum requirement: Maximum %g um, Actual: %g um", maximum, actual), true
	}
	return "", false
}
