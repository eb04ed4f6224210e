// Package koehler contributes the multifocal Koehler integrator design
// specification. The equations follow Mahecic et al., "Homogeneous multifocal
// excitation for high-throughput super-resolution imaging", Nature Methods
// 17, 726-733 (2020).
package koehler

import (
	"udesign/internal/engine"
	"udesign/pkg/design"
	"udesign/pkg/optics"
)

// Plugin implements the koehler design module.
type Plugin struct{}

// New constructs a koehler plugin instance.
func New() Plugin {
	return Plugin{}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "koehler" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register wires the design specification into the engine.
func (Plugin) Register(registry *engine.Registry) error {
	return registry.RegisterSpec(Spec())
}

// Spec declares the multifocal Koehler integrator design: its inputs with
// template defaults, the derived quantities in evaluation order, and the
// validation constraints.
func Spec() design.Spec {
	return design.Spec{
		Type:        "koehler",
		Version:     "0.1.0",
		Title:       "Multifocal Koehler Integrator",
		Description: "Design equations for a multifocal Koehler integrator, after Mahecic et al., Nature Methods 17, 726-733 (2020).",
		Parameters: []design.ParameterDef{
			{Name: "mla.focal_length", Type: design.ParameterQuantity, Unit: optics.Millimeter, Description: "Integrator MLA lenslet focal length", Default: 4.78, Required: true},
			{Name: "mla.pitch", Type: design.ParameterQuantity, Unit: optics.Micrometer, Description: "Integrator MLA lenslet pitch", Default: 300, Required: true},
			{Name: "mla_ex.focal_length", Type: design.ParameterQuantity, Unit: optics.Millimeter, Description: "Excitation MLA lenslet focal length", Default: 6, Required: true},
			{Name: "mla_ex.pitch", Type: design.ParameterQuantity, Unit: optics.Micrometer, Description: "Excitation MLA lenslet pitch", Default: 222, Required: true},
			{Name: "fourier_lens.focal_length", Type: design.ParameterQuantity, Unit: optics.Millimeter, Description: "Fourier lens focal length", Default: 300, Required: true},
			{Name: "collimating_lens.focal_length", Type: design.ParameterQuantity, Unit: optics.Millimeter, Description: "Collimating lens focal length", Default: 60, Required: true},
			{Name: "telescope.magnification", Type: design.ParameterNumber, Description: "Relay telescope magnification", Default: 0.25, Required: true},
			{Name: "source.radius", Type: design.ParameterQuantity, Unit: optics.Millimeter, Description: "Source radius", Default: 1, Required: true},
			{Name: "source.divergence", Type: design.ParameterQuantity, Unit: optics.Milliradian, Description: "Source half-angle divergence", Default: 100, Required: true},
			{Name: "source.wavelength", Type: design.ParameterQuantity, Unit: optics.Micrometer, Description: "Source wavelength", Default: 0.488, Required: true},
			{Name: "system.magnification", Type: design.ParameterNumber, Description: "Detection-path system magnification", Default: 116, Required: true},
		},
		Formulas: []design.Formula{
			{
				Name:      "flat_field_size",
				Title:     "Flat field size at excitation MLA",
				Equation:  `\( S = \frac{f_{FL} \times p}{f} \)`,
				DependsOn: []string{"fourier_lens.focal_length", "mla.pitch", "mla.focal_length"},
				Unit:      optics.Millimeter,
				Compute:   flatFieldSize,
			},
			{
				Name:      "flat_field_size_sample_plane",
				Title:     "Flat field size at sample plane",
				Equation:  `\( S = \frac{1}{M_{sys}} \frac{f_{FL} \times p}{f} \)`,
				DependsOn: []string{"fourier_lens.focal_length", "mla.pitch", "mla.focal_length", "system.magnification"},
				Unit:      optics.Micrometer,
				Compute:   flatFieldSizeSamplePlane,
			},
			{
				Name:      "beam_radius_mla",
				Title:     "Beam radius at first integrator MLA",
				Equation:  `\( R_{beam} = R_{source} + f_{CL} * \tan \left( \theta_{source} \right) \)`,
				DependsOn: []string{"source.radius", "collimating_lens.focal_length", "source.divergence"},
				Unit:      optics.Millimeter,
				Compute:   beamRadiusMLA,
			},
			{
				Name:      "excitation_spot_size",
				Title:     "Spot size in focal plane of excitation MLA",
				Equation:  `\( r = \frac{f \times f_{ex}}{f_{FL} f_{CL} M_{tel}} R_{source} + \frac{f_{ex} M_{tel}}{f_{FL}} R_{beam} \)`,
				DependsOn: []string{"mla.focal_length", "mla_ex.focal_length", "telescope.magnification", "fourier_lens.focal_length", "collimating_lens.focal_length", "source.radius", "beam_radius_mla"},
				Unit:      optics.Micrometer,
				Compute:   excitationSpotSize,
			},
			{
				Name:      "excitation_spot_size_sample_plane",
				Title:     "Spot size in sample plane",
				Equation:  `\( r_{sample} = \frac{1}{M_{sys}} \left( \frac{f \times f_{ex}}{f_{FL} f_{CL} M_{tel}} R_{source} + \frac{f_{ex} M_{tel}}{f_{FL}} R_{beam} \right) \)`,
				DependsOn: []string{"excitation_spot_size", "system.magnification"},
				Unit:      optics.Micrometer,
				Compute:   excitationSpotSizeSamplePlane,
			},
			{
				Name:      "homogeneity",
				Title:     "Homogeneity",
				Equation:  `\( B = \frac{R_{beam}}{p} \)`,
				DependsOn: []string{"beam_radius_mla", "mla.pitch"},
				Unit:      optics.None,
				Compute:   homogeneity,
			},
			{
				Name:      "fresnel_number",
				Title:     "Fresnel number",
				Equation:  `\( F = \frac{p^2}{4 f \lambda} \)`,
				DependsOn: []string{"mla.pitch", "mla.focal_length", "source.wavelength"},
				Unit:      optics.None,
				Compute:   fresnelNumber,
			},
		},
		Constraints: []design.Constraint{
			fresnelNumberMinimum{},
			homogeneityMinimum{},
			lensletCrosstalk{},
		},
	}
}

// flatFieldSize is the edge length of the homogenized square field where the
// excitation MLA sits.
func flatFieldSize(args *design.Args) (optics.Quantity, error) {
	ffl := args.Value("fourier_lens.focal_length")
	pitch := args.Value("mla.pitch")
	f := args.Value("mla.focal_length")
	return optics.Convert(optics.Div(optics.Mul(ffl, pitch), f), optics.Millimeter)
}

func flatFieldSizeSamplePlane(args *design.Args) (optics.Quantity, error) {
	ffl := args.Value("fourier_lens.focal_length")
	pitch := args.Value("mla.pitch")
	f := args.Value("mla.focal_length")
	mag := args.Value("system.magnification")
	q := optics.Div(optics.Div(optics.Mul(ffl, pitch), f), mag)
	return optics.Convert(q, optics.Micrometer)
}

// beamRadiusMLA grows the source radius by the spread picked up through the
// collimating lens. The full tangent of the divergence is kept rather than
// the small-angle approximation.
func beamRadiusMLA(args *design.Args) (optics.Quantity, error) {
	radius, err := optics.Convert(args.Value("source.radius"), optics.Meter)
	if err != nil {
		return optics.Quantity{}, err
	}
	fcl := args.Value("collimating_lens.focal_length")
	tangent, err := optics.Tan(args.Value("source.divergence"))
	if err != nil {
		return optics.Quantity{}, err
	}
	q, err := optics.Add(radius, optics.Mul(fcl, tangent))
	if err != nil {
		return optics.Quantity{}, err
	}
	return optics.Convert(q, optics.Millimeter)
}

// excitationSpotSize sums the geometric image of the source with the
// divergence-driven blur at the excitation MLA focal plane.
func excitationSpotSize(args *design.Args) (optics.Quantity, error) {
	f := args.Value("mla.focal_length")
	fex := args.Value("mla_ex.focal_length")
	magTel := args.Value("telescope.magnification")
	ffl := args.Value("fourier_lens.focal_length")
	fcl := args.Value("collimating_lens.focal_length")
	radius := args.Value("source.radius")
	beam := args.Value("beam_radius_mla")

	direct := optics.Mul(optics.Div(optics.Div(optics.Div(optics.Mul(f, fex), magTel), ffl), fcl), radius)
	diverged := optics.Mul(optics.Div(optics.Mul(fex, magTel), ffl), beam)
	q, err := optics.Add(direct, diverged)
	if err != nil {
		return optics.Quantity{}, err
	}
	return optics.Convert(q, optics.Micrometer)
}

func excitationSpotSizeSamplePlane(args *design.Args) (optics.Quantity, error) {
	spot := args.Value("excitation_spot_size")
	mag := args.Value("system.magnification")
	return optics.Convert(optics.Div(spot, mag), optics.Micrometer)
}

// homogeneity counts how many lenslet pitches the beam covers; the more
// lenslets contribute, the flatter the integrated field.
func homogeneity(args *design.Args) (optics.Quantity, error) {
	beam := args.Value("beam_radius_mla")
	pitch := args.Value("mla.pitch")
	return optics.Div(beam, pitch), nil
}

// fresnelNumber measures how far each lenslet sits from the diffraction
// regime in which the integrator stops homogenizing.
func fresnelNumber(args *design.Args) (optics.Quantity, error) {
	pitch := args.Value("mla.pitch")
	f := args.Value("mla.focal_length")
	wav := args.Value("source.wavelength")
	q := optics.Div(optics.Div(optics.Div(optics.Mul(pitch, pitch), optics.Scalar(4)), f), wav)
	return q, nil
}
