package koehler

import (
	"fmt"

	"udesign/pkg/design"
	"udesign/pkg/optics"
)

// fresnelNumberMinimum keeps each lenslet out of the diffraction regime where
// the integrator no longer homogenizes.
type fresnelNumberMinimum struct{}

func (fresnelNumberMinimum) Name() string { return "fresnel_number_minimum" }

func (fresnelNumberMinimum) Check(view design.Review) (string, bool) {
	fresnel := view.Result("fresnel_number").Magnitude
	target := 5.0
	if fresnel < target {
		return fmt.Sprintf("Fresnel number (%g) should be greater than or equal to %g for good homogeneity.", fresnel, target), true
	}
	return "", false
}

// homogeneityMinimum wants the beam to span several lenslets so their
// contributions average out.
type homogeneityMinimum struct{}

func (homogeneityMinimum) Name() string { return "homogeneity_minimum" }

func (homogeneityMinimum) Check(view design.Review) (string, bool) {
	ratio := view.Result("homogeneity").Magnitude
	target := 5.0
	if ratio < target {
		return fmt.Sprintf("Homogeneity (%g) should be greater than or equal to %g for good homogeneity.", ratio, target), true
	}
	return "", false
}

// lensletCrosstalk keeps the demagnified source image within half a lenslet
// pitch so light entering one lenslet cannot reach the focus of its
// neighbour.
type lensletCrosstalk struct{}

func (lensletCrosstalk) Name() string { return "crosstalk" }

func (lensletCrosstalk) Check(view design.Review) (string, bool) {
	f := view.Input("mla.focal_length").SI()
	magTel := view.Input("telescope.magnification").SI()
	fcl := view.Input("collimating_lens.focal_length").SI()
	radius := view.Input("source.radius").SI()
	pitch := view.Input("mla.pitch").SI()

	spot := f / magTel / fcl * radius
	limit := pitch / 2
	if spot > limit {
		um := optics.NewQuantity(1, optics.Micrometer).SI()
		return fmt.Sprintf("Crosstalk (%g um) should be less than or equal to %g um for good homogeneity.", spot/um, limit/um), true
	}
	return "", false
}
