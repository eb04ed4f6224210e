// Package dpm contributes the diffraction phase microscope design
// specification. The equations follow Bhaduri et al., "Diffraction phase
// microscopy: principles and applications in materials and life sciences",
// Advances in Optics and Photonics 6, 57-119 (2014), with a few additions.
package dpm

import (
	"math"

	"udesign/internal/engine"
	"udesign/pkg/design"
	"udesign/pkg/optics"
)

// Plugin implements the dpm design module.
type Plugin struct{}

// New constructs a dpm plugin instance.
func New() Plugin {
	return Plugin{}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "dpm" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register wires the design specification into the engine.
func (Plugin) Register(registry *engine.Registry) error {
	return registry.RegisterSpec(Spec())
}

// Spec declares the diffraction phase microscope design: its inputs with
// template defaults, the derived quantities in evaluation order, and the
// validation constraints.
func Spec() design.Spec {
	return design.Spec{
		Type:        "dpm",
		Version:     "0.1.0",
		Title:       "Diffraction Phase Microscope",
		Description: "Design equations for a diffraction phase microscope, after Bhaduri et al., Advances in Optics and Photonics 6, 57-119 (2014).",
		Parameters: []design.ParameterDef{
			{Name: "objective.magnification", Type: design.ParameterNumber, Description: "Objective magnification", Default: 20, Required: true},
			{Name: "objective.numerical_aperture", Type: design.ParameterNumber, Description: "Objective numerical aperture", Default: 0.4, Required: true},
			{Name: "camera.pixel_size", Type: design.ParameterQuantity, Unit: optics.Micrometer, Description: "Camera pixel size", Default: 5.2, Required: true},
			{Name: "camera.horizontal_number_of_pixels", Type: design.ParameterInteger, Description: "Horizontal pixel count", Default: 512, Required: true},
			{Name: "camera.vertical_number_of_pixels", Type: design.ParameterInteger, Description: "Vertical pixel count", Default: 512, Required: true},
			{Name: "light_source.wavelength", Type: design.ParameterQuantity, Unit: optics.Micrometer, Description: "Illumination wavelength", Default: 0.64, Required: true},
			{Name: "grating.period", Type: design.ParameterQuantity, Unit: optics.Micrometer, Description: "Diffraction grating period", Default: 1000.0 / 300, Required: true},
			{Name: "lens_1.focal_length", Type: design.ParameterQuantity, Unit: optics.Millimeter, Description: "Fourier lens 1 focal length", Default: 75, Required: true},
			{Name: "lens_1.clear_aperture", Type: design.ParameterQuantity, Unit: optics.Millimeter, Description: "Fourier lens 1 clear aperture", Default: 45.72, Required: true},
			{Name: "lens_2.focal_length", Type: design.ParameterQuantity, Unit: optics.Millimeter, Description: "Fourier lens 2 focal length", Default: 300, Required: true},
			{Name: "lens_2.clear_aperture", Type: design.ParameterQuantity, Unit: optics.Millimeter, Description: "Fourier lens 2 clear aperture", Default: 45.72, Required: true},
			{Name: "pinhole.diameter", Type: design.ParameterQuantity, Unit: optics.Micrometer, Description: "Reference-arm pinhole diameter", Default: 30, Required: true},
			{Name: "misc.central_lobe_size_factor", Type: design.ParameterNumber, Description: "Airy central lobe size factor", Default: 4, Required: true},
		},
		Formulas: []design.Formula{
			{
				Name:      "4f_magnification",
				Title:     "Actual 4f magnification",
				Equation:  `\( -f_2 / f_1 \)`,
				DependsOn: []string{"lens_1.focal_length", "lens_2.focal_length"},
				Unit:      optics.None,
				Compute:   magnification4f,
			},
			{
				Name:      "system_magnification",
				Title:     "System magnification",
				Equation:  `\( M_{obj} M_{4f} \)`,
				DependsOn: []string{"objective.magnification", "4f_magnification"},
				Unit:      optics.None,
				Compute:   systemMagnification,
			},
			{
				Name:      "resolution",
				Title:     "Resolution",
				Equation:  `\( \Delta \rho = \frac{ 1.22 \lambda }{ \text{NA}_{obj} }\)`,
				DependsOn: []string{"light_source.wavelength", "objective.numerical_aperture"},
				Unit:      optics.Micrometer,
				Compute:   resolution,
			},
			{
				Name:      "minimum_resolution",
				Title:     "Minimum resolution",
				Equation:  `\( \Delta \rho \ge \frac{\Lambda}{0.28 M_{obj}}  \)`,
				DependsOn: []string{"grating.period", "objective.magnification"},
				Unit:      optics.Micrometer,
				Compute:   minimumResolution,
			},
			{
				Name:      "maximum_grating_period",
				Title:     "Maximum grating period",
				Equation:  `\(\Lambda \le \frac{ \lambda M_{obj} }{3 \text{NA}_{obj}}\)`,
				DependsOn: []string{"light_source.wavelength", "objective.magnification", "objective.numerical_aperture"},
				Unit:      optics.Micrometer,
				Compute:   maximumGratingPeriod,
			},
			{
				Name:      "maximum_pixel_size",
				Title:     "Maximum pixel size",
				Equation:  `\( a \le \frac{ \Lambda |M_{4f}| }{ 2.67 }\)`,
				DependsOn: []string{"grating.period", "4f_magnification"},
				Unit:      optics.Micrometer,
				Compute:   maximumPixelSize,
			},
			{
				Name:      "camera_diagonal",
				Title:     "Camera diagonal",
				Equation:  `\( D = a \sqrt{m^2 + n^2} \)`,
				DependsOn: []string{"camera.pixel_size", "camera.horizontal_number_of_pixels", "camera.vertical_number_of_pixels"},
				Unit:      optics.Millimeter,
				Compute:   cameraDiagonal,
			},
			{
				Name:      "field_of_view_horizontal",
				Title:     "Field of view (horizontal)",
				Equation:  `\( \text{FOV}_h = m \frac{ a } { M_{obj} |M_{4f}| } \)`,
				DependsOn: []string{"camera.horizontal_number_of_pixels", "camera.pixel_size", "objective.magnification", "4f_magnification"},
				Unit:      optics.Micrometer,
				Compute:   fieldOfViewHorizontal,
			},
			{
				Name:      "field_of_view_vertical",
				Title:     "Field of view (vertical)",
				Equation:  `\( \text{FOV}_v = n \frac{ a } { M_{obj} |M_{4f}| } \)`,
				DependsOn: []string{"camera.vertical_number_of_pixels", "camera.pixel_size", "objective.magnification", "4f_magnification"},
				Unit:      optics.Micrometer,
				Compute:   fieldOfViewVertical,
			},
			{
				Name:      "fourier_plane_spacing",
				Title:     "Fourier plane spacing",
				Equation:  `\( \Delta x = \frac{ f_1 \lambda }{ \Lambda } \)`,
				DependsOn: []string{"lens_1.focal_length", "light_source.wavelength", "grating.period"},
				Unit:      optics.Millimeter,
				Compute:   fourierPlaneSpacing,
			},
			{
				Name:      "fourier_plane_sizes",
				Title:     "Radial extent of image spectra",
				Equation:  `\( r = \text{NA}_{obj}' f_1 \)`,
				DependsOn: []string{"objective.numerical_aperture", "objective.magnification", "lens_1.focal_length"},
				Unit:      optics.Millimeter,
				Compute:   fourierPlaneSizes,
			},
			{
				Name:      "minimum_lens_1_na",
				Title:     "Minimum NA of Fourier lens 1",
				Equation:  `\( \text{NA}_{L_1} \ge \frac{ \lambda }{ \Lambda } + \frac{\text{NA}_{obj}}{M_{obj}} \)`,
				DependsOn: []string{"light_source.wavelength", "grating.period", "objective.numerical_aperture", "objective.magnification"},
				Unit:      optics.None,
				Compute:   minimumLens1NA,
			},
			{
				Name:      "minimum_lens_2_na",
				Title:     "Minimum NA of Fourier lens 2",
				Equation:  `\( \text{NA}_{L_2} \ge \frac{ \lambda }{ \Lambda |M_{4f}| } + 1.22 \frac{ \lambda} { d } \)`,
				DependsOn: []string{"light_source.wavelength", "grating.period", "4f_magnification", "pinhole.diameter"},
				Unit:      optics.None,
				Compute:   minimumLens2NA,
			},
			{
				Name:      "lens_1_na",
				Title:     "Actual NA of Fourier lens 1",
				Equation:  `\( \text{NA}_{L_1} = \frac{ D_1 }{ 2 f_1 } \)`,
				DependsOn: []string{"lens_1.clear_aperture", "lens_1.focal_length"},
				Unit:      optics.None,
				Compute:   lens1NA,
			},
			{
				Name:      "lens_2_na",
				Title:     "Actual NA of Fourier lens 2",
				Equation:  `\( \text{NA}_{L_2} = \frac{ D_2 }{ 2 f_2 } \)`,
				DependsOn: []string{"lens_2.clear_aperture", "lens_2.focal_length"},
				Unit:      optics.None,
				Compute:   lens2NA,
			},
			{
				Name:      "minimum_4f_magnification",
				Title:     "Minimum 4f magnification (abs. value)",
				Equation:  `\( |M_{4f}| \ge 2a \left( \frac{1}{\Lambda} + \frac{ \text{NA}_{obj} }{ \lambda M_{obj} } \right) \)`,
				DependsOn: []string{"camera.pixel_size", "grating.period", "objective.numerical_aperture", "light_source.wavelength", "objective.magnification"},
				Unit:      optics.None,
				Compute:   minimum4fMagnification,
			},
			{
				Name:      "maximum_pinhole_diameter",
				Title:     "Maximum pinhole diameter",
				Equation:  `\( d \le \frac{ 2.44 \lambda f_2 } { \gamma D} \)`,
				DependsOn: []string{"light_source.wavelength", "lens_2.focal_length", "camera_diagonal", "misc.central_lobe_size_factor"},
				Unit:      optics.Micrometer,
				Compute:   maximumPinholeDiameter,
			},
			{
				Name:      "coupling_ratio",
				Title:     "Coupling ratio",
				Equation:  `\( \eta = \frac{ \Delta \rho }{ \text{FOV}_{\text{diagonal}}} \)`,
				DependsOn: []string{"resolution", "field_of_view_horizontal", "field_of_view_vertical"},
				Unit:      optics.None,
				Compute:   couplingRatio,
			},
		},
		Constraints: []design.Constraint{
			magnification4fMinimum{},
			lens1NAMinimum{},
			lens2NAMinimum{},
			pinholeDiameterMaximum{},
			pixelSizeMaximum{},
		},
	}
}

func magnification4f(args *design.Args) (optics.Quantity, error) {
	f1 := args.Value("lens_1.focal_length")
	f2 := args.Value("lens_2.focal_length")
	return optics.Scale(optics.Div(f2, f1), -1), nil
}

func systemMagnification(args *design.Args) (optics.Quantity, error) {
	mag := args.Value("objective.magnification")
	mag4f := args.Value("4f_magnification")
	return optics.Scale(optics.Mul(mag, mag4f), -1), nil
}

// resolution is the radius of the Airy disk in the object space.
func resolution(args *design.Args) (optics.Quantity, error) {
	wav := args.Value("light_source.wavelength")
	na := args.Value("objective.numerical_aperture")
	return optics.Convert(optics.Div(optics.Scale(wav, 1.22), na), optics.Micrometer)
}

// minimumResolution is the smallest Airy disk radius the grating can sample
// for a given objective magnification.
func minimumResolution(args *design.Args) (optics.Quantity, error) {
	period := args.Value("grating.period")
	mag := args.Value("objective.magnification")
	q := optics.Div(optics.Div(period, optics.Scalar(0.28)), mag)
	return optics.Convert(q, optics.Micrometer)
}

// maximumGratingPeriod bounds the grating period for correct PSF sampling.
func maximumGratingPeriod(args *design.Args) (optics.Quantity, error) {
	wav := args.Value("light_source.wavelength")
	mag := args.Value("objective.magnification")
	na := args.Value("objective.numerical_aperture")
	q := optics.Div(optics.Div(optics.Mul(wav, mag), optics.Scalar(3)), na)
	return optics.Convert(q, optics.Micrometer)
}

// maximumPixelSize is the Nyquist-style sampling bound on the camera pixel.
func maximumPixelSize(args *design.Args) (optics.Quantity, error) {
	period := args.Value("grating.period")
	mag4f := args.Value("4f_magnification")
	q := optics.Div(optics.Mul(period, optics.Abs(mag4f)), optics.Scalar(2.67))
	return optics.Convert(q, optics.Micrometer)
}

func cameraDiagonal(args *design.Args) (optics.Quantity, error) {
	px := args.Value("camera.pixel_size")
	m := args.Value("camera.horizontal_number_of_pixels")
	n := args.Value("camera.vertical_number_of_pixels")
	return optics.Convert(optics.Scale(px, math.Hypot(m.Magnitude, n.Magnitude)), optics.Millimeter)
}

func fieldOfViewHorizontal(args *design.Args) (optics.Quantity, error) {
	m := args.Value("camera.horizontal_number_of_pixels")
	px := args.Value("camera.pixel_size")
	mag := args.Value("objective.magnification")
	mag4f := args.Value("4f_magnification")
	q := optics.Div(optics.Div(optics.Scale(px, m.Magnitude), mag), optics.Abs(mag4f))
	return optics.Convert(q, optics.Micrometer)
}

func fieldOfViewVertical(args *design.Args) (optics.Quantity, error) {
	n := args.Value("camera.vertical_number_of_pixels")
	px := args.Value("camera.pixel_size")
	mag := args.Value("objective.magnification")
	mag4f := args.Value("4f_magnification")
	q := optics.Div(optics.Div(optics.Scale(px, n.Magnitude), mag), optics.Abs(mag4f))
	return optics.Convert(q, optics.Micrometer)
}

// fourierPlaneSpacing is the position of the first diffraction order in the
// Fourier plane with respect to the optics axis. The tangent of the
// diffracted angle is taken to be approximately the angle itself.
func fourierPlaneSpacing(args *design.Args) (optics.Quantity, error) {
	f1 := args.Value("lens_1.focal_length")
	wav := args.Value("light_source.wavelength")
	period := args.Value("grating.period")
	return optics.Convert(optics.Div(optics.Mul(f1, wav), period), optics.Millimeter)
}

// fourierPlaneSizes is the radial extent of the image spectra in the Fourier
// plane. Broadening from aberrations such as coma is ignored and the Abbe
// sine condition is assumed to hold.
func fourierPlaneSizes(args *design.Args) (optics.Quantity, error) {
	na := args.Value("objective.numerical_aperture")
	mag := args.Value("objective.magnification")
	f1 := args.Value("lens_1.focal_length")
	return optics.Convert(optics.Mul(optics.Div(na, mag), f1), optics.Millimeter)
}

// minimumLens1NA avoids clipping the +1 diffracted order at the first
// Fourier lens.
func minimumLens1NA(args *design.Args) (optics.Quantity, error) {
	wav := args.Value("light_source.wavelength")
	period := args.Value("grating.period")
	na := args.Value("objective.numerical_aperture")
	mag := args.Value("objective.magnification")
	return optics.Add(optics.Div(wav, period), optics.Div(na, mag))
}

// minimumLens2NA avoids clipping the +1 diffracted order at the second
// Fourier lens.
func minimumLens2NA(args *design.Args) (optics.Quantity, error) {
	wav := args.Value("light_source.wavelength")
	period := args.Value("grating.period")
	mag4f := args.Value("4f_magnification")
	pinhole := args.Value("pinhole.diameter")
	first := optics.Div(optics.Div(wav, optics.Abs(mag4f)), period)
	second := optics.Div(optics.Scale(wav, 1.22), pinhole)
	return optics.Add(first, second)
}

// lensNA assumes the Abbe sine condition is valid.
func lensNA(focalLength, clearAperture optics.Quantity) optics.Quantity {
	return optics.Div(optics.Div(clearAperture, optics.Scalar(2)), focalLength)
}

func lens1NA(args *design.Args) (optics.Quantity, error) {
	return lensNA(args.Value("lens_1.focal_length"), args.Value("lens_1.clear_aperture")), nil
}

func lens2NA(args *design.Args) (optics.Quantity, error) {
	return lensNA(args.Value("lens_2.focal_length"), args.Value("lens_2.clear_aperture")), nil
}

// minimum4fMagnification gives sufficient PSF and fringe sampling.
func minimum4fMagnification(args *design.Args) (optics.Quantity, error) {
	px := args.Value("camera.pixel_size")
	period := args.Value("grating.period")
	na := args.Value("objective.numerical_aperture")
	wav := args.Value("light_source.wavelength")
	mag := args.Value("objective.magnification")
	sum, err := optics.Add(optics.Div(optics.Scalar(1), period), optics.Div(optics.Div(na, wav), mag))
	if err != nil {
		return optics.Quantity{}, err
	}
	return optics.Mul(optics.Scale(px, 2), sum), nil
}

// maximumPinholeDiameter ensures a uniform reference beam across the camera.
func maximumPinholeDiameter(args *design.Args) (optics.Quantity, error) {
	wav := args.Value("light_source.wavelength")
	f2 := args.Value("lens_2.focal_length")
	diag := args.Value("camera_diagonal")
	lobe := args.Value("misc.central_lobe_size_factor")
	q := optics.Div(optics.Div(optics.Mul(optics.Scale(wav, 2.44), f2), diag), lobe)
	return optics.Convert(q, optics.Micrometer)
}

// couplingRatio is the ratio of the unscattered and scattered beam radii in
// the Fourier plane. A ratio of 1 means the diffraction spot is the size of
// the field of view and only the DC signal can be obtained.
func couplingRatio(args *design.Args) (optics.Quantity, error) {
	res := args.Value("resolution")
	fovH := args.Value("field_of_view_horizontal")
	fovV := args.Value("field_of_view_vertical")
	diagonal := optics.NewQuantity(math.Hypot(fovH.SI(), fovV.SI()), optics.Meter)
	return optics.Div(res, diagonal), nil
}
