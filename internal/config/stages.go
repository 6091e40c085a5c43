package config

import (
	"fmt"
	"slices"
)

// Stages groups the options for the four preprocessing stages. The zero
// value is not useful; start from DefaultStages.
type Stages struct {
	Convert      Convert      `json:"convert" yaml:"convert"`
	Calibration  Calibration  `json:"calibration" yaml:"calibration"`
	Registration Registration `json:"registration" yaml:"registration"`
	Stacking     Stacking     `json:"stacking" yaml:"stacking"`
}

// Convert covers light sequence conversion and master frame creation.
type Convert struct {
	Basename   string `json:"basename" yaml:"basename"`
	StartIndex int    `json:"start_index" yaml:"start_index"`
	OutDir     string `json:"out_dir" yaml:"out_dir"`
	Debayer    bool   `json:"debayer" yaml:"debayer"`

	CreateBias bool `json:"create_bias" yaml:"create_bias"`
	CreateFlat bool `json:"create_flat" yaml:"create_flat"`
	CreateDark bool `json:"create_dark" yaml:"create_dark"`

	// FlatBiasSource selects how flats are bias-corrected before stacking:
	// "master", "synthetic" or "none".
	FlatBiasSource     string `json:"flat_bias_source" yaml:"flat_bias_source"`
	SyntheticBiasLevel string `json:"synthetic_bias_level" yaml:"synthetic_bias_level"`
}

// Calibration covers the calibrate command on the light sequence.
type Calibration struct {
	Sequence string `json:"sequence" yaml:"sequence"`
	Prefix   string `json:"prefix" yaml:"prefix"`

	UseBias  bool   `json:"use_bias" yaml:"use_bias"`
	BiasPath string `json:"bias_path" yaml:"bias_path"`
	UseDark  bool   `json:"use_dark" yaml:"use_dark"`
	DarkPath string `json:"dark_path" yaml:"dark_path"`
	UseFlat  bool   `json:"use_flat" yaml:"use_flat"`
	FlatPath string `json:"flat_path" yaml:"flat_path"`

	// DarkOptimization is "none", "auto" or "exposure".
	DarkOptimization string `json:"dark_optimization" yaml:"dark_optimization"`

	// Cosmetic is "none", "dark" or "bpm".
	Cosmetic  string  `json:"cosmetic" yaml:"cosmetic"`
	ColdSigma float64 `json:"cold_sigma" yaml:"cold_sigma"`
	HotSigma  float64 `json:"hot_sigma" yaml:"hot_sigma"`
	BPMPath   string  `json:"bpm_path" yaml:"bpm_path"`

	CFA         bool `json:"cfa" yaml:"cfa"`
	EqualizeCFA bool `json:"equalize_cfa" yaml:"equalize_cfa"`
	Debayer     bool `json:"debayer" yaml:"debayer"`
	FixXTrans   bool `json:"fix_xtrans" yaml:"fix_xtrans"`
}

// Registration covers star registration of the calibrated sequence.
type Registration struct {
	Sequence string `json:"sequence" yaml:"sequence"`
	Prefix   string `json:"prefix" yaml:"prefix"`

	// Transformation is homography, affine, similarity, euclidean or shift.
	Transformation string `json:"transformation" yaml:"transformation"`
	// Layer is "red", "green" or "blue".
	Layer    string `json:"layer" yaml:"layer"`
	MinPairs int    `json:"min_pairs" yaml:"min_pairs"`
	MaxStars int    `json:"max_stars" yaml:"max_stars"`

	TwoPass bool   `json:"two_pass" yaml:"two_pass"`
	Framing string `json:"framing" yaml:"framing"` // current, max, min, cog

	Drizzle        bool    `json:"drizzle" yaml:"drizzle"`
	DrizzleScale   float64 `json:"drizzle_scale" yaml:"drizzle_scale"`
	DrizzlePixFrac float64 `json:"drizzle_pixfrac" yaml:"drizzle_pixfrac"`
	DrizzleKernel  string  `json:"drizzle_kernel" yaml:"drizzle_kernel"`

	// Interpolation applies when Drizzle is off: lanczos4, cubic, linear,
	// nearest, area or none.
	Interpolation string `json:"interpolation" yaml:"interpolation"`
	Undistort     bool   `json:"undistort" yaml:"undistort"`
}

// FrameFilter excludes frames from stacking by a quality criterion. Unit is
// "%" for the best-percentage form, "k" for a sigma bound, or empty for a
// literal value.
type FrameFilter struct {
	Criterion string `json:"criterion" yaml:"criterion"` // fwhm, wfwhm, round, bkg, nbstars, quality
	Value     string `json:"value" yaml:"value"`
	Unit      string `json:"unit" yaml:"unit"`
}

// Stacking covers the final stack command and post-processing.
type Stacking struct {
	Sequence   string `json:"sequence" yaml:"sequence"`
	OutputName string `json:"output_name" yaml:"output_name"`

	// Method is rejection, sum, median, max or min.
	Method string `json:"method" yaml:"method"`
	// Rejection is sigma, winsorized, mad, percentile, gesd, linearfit or none.
	Rejection string  `json:"rejection" yaml:"rejection"`
	SigmaLow  float64 `json:"sigma_low" yaml:"sigma_low"`
	SigmaHigh float64 `json:"sigma_high" yaml:"sigma_high"`

	// Normalization is addscale, none, add, mul or mulscale.
	Normalization string `json:"normalization" yaml:"normalization"`
	// Weighting is none, noise, wfwhm, nbstars or nbstack.
	Weighting string `json:"weighting" yaml:"weighting"`
	// RejectionMaps is none, one or two.
	RejectionMaps string `json:"rejection_maps" yaml:"rejection_maps"`

	Filters []FrameFilter `json:"filters" yaml:"filters"`

	RGBEqualize  bool `json:"rgb_equalize" yaml:"rgb_equalize"`
	OutputNorm   bool `json:"output_norm" yaml:"output_norm"`
	Out32Bit     bool `json:"out_32bit" yaml:"out_32bit"`
	FlipBottomUp bool `json:"flip_bottom_up" yaml:"flip_bottom_up"`

	Maximize    bool `json:"maximize" yaml:"maximize"`
	OverlapNorm bool `json:"overlap_norm" yaml:"overlap_norm"`
	FeatherPx   int  `json:"feather_px" yaml:"feather_px"`
}

// DefaultStages mirrors the conventional biases/flats/darks/lights layout
// with the usual pp_ and r_ sequence prefixes.
func DefaultStages() Stages {
	return Stages{
		Convert: Convert{
			Basename:           "light",
			StartIndex:         1,
			OutDir:             "../process",
			CreateBias:         true,
			CreateFlat:         true,
			CreateDark:         true,
			FlatBiasSource:     "master",
			SyntheticBiasLevel: "64*$OFFSET",
		},
		Calibration: Calibration{
			Sequence:         "light",
			Prefix:           "pp_",
			UseBias:          false,
			BiasPath:         "../masters/bias_stacked",
			UseDark:          true,
			DarkPath:         "../masters/dark_stacked",
			UseFlat:          true,
			FlatPath:         "../masters/pp_flat_stacked",
			DarkOptimization: "none",
			Cosmetic:         "dark",
			ColdSigma:        3,
			HotSigma:         3,
		},
		Registration: Registration{
			Sequence:       "pp_light",
			Prefix:         "r_",
			Transformation: "homography",
			Layer:          "green",
			MinPairs:       10,
			MaxStars:       2000,
			Framing:        "current",
			DrizzleScale:   2,
			DrizzlePixFrac: 1,
			DrizzleKernel:  "square",
			Interpolation:  "lanczos4",
		},
		Stacking: Stacking{
			Sequence:      "r_pp_light",
			OutputName:    "result",
			Method:        "rejection",
			Rejection:     "winsorized",
			SigmaLow:      3,
			SigmaHigh:     3,
			Normalization: "addscale",
			Weighting:     "none",
			RejectionMaps: "none",
			FlipBottomUp:  true,
		},
	}
}

// Normalize enforces the cross-stage exclusion rules. Drizzle needs raw
// Bayer data, so it wins over calibration debayer when both are set. Mosaic
// options only make sense under two-pass max framing.
func (s *Stages) Normalize() {
	if s.Registration.Drizzle {
		s.Calibration.Debayer = false
	}
	if !s.Registration.TwoPass {
		s.Registration.Framing = "current"
	}
	if s.Registration.Framing != "max" {
		s.Stacking.Maximize = false
		s.Stacking.FeatherPx = 0
	}
	if !s.Stacking.Maximize {
		s.Stacking.OverlapNorm = false
	}
}

// Validate checks every enumerated stage option against its allowed values.
// Hand-edited configs and profiles are the usual source of typos here.
func (s *Stages) Validate() error {
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"convert.flat_bias_source", s.Convert.FlatBiasSource, []string{"master", "synthetic", "none"}},
		{"calibration.dark_optimization", s.Calibration.DarkOptimization, []string{"none", "auto", "exposure"}},
		{"calibration.cosmetic", s.Calibration.Cosmetic, []string{"none", "dark", "bpm"}},
		{"registration.transformation", s.Registration.Transformation, []string{"homography", "affine", "similarity", "euclidean", "shift"}},
		{"registration.layer", s.Registration.Layer, []string{"red", "green", "blue"}},
		{"registration.framing", s.Registration.Framing, []string{"current", "max", "min", "cog"}},
		{"registration.drizzle_kernel", s.Registration.DrizzleKernel, []string{"square", "point", "gaussian", "turbo", "lanczos2", "lanczos3"}},
		{"registration.interpolation", s.Registration.Interpolation, []string{"lanczos4", "cubic", "linear", "nearest", "area", "none"}},
		{"stacking.method", s.Stacking.Method, []string{"rejection", "sum", "median", "max", "min"}},
		{"stacking.rejection", s.Stacking.Rejection, []string{"sigma", "winsorized", "mad", "percentile", "gesd", "linearfit", "none"}},
		{"stacking.normalization", s.Stacking.Normalization, []string{"addscale", "none", "add", "mul", "mulscale"}},
		{"stacking.weighting", s.Stacking.Weighting, []string{"none", "noise", "wfwhm", "nbstars", "nbstack"}},
		{"stacking.rejection_maps", s.Stacking.RejectionMaps, []string{"none", "one", "two"}},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		if !slices.Contains(c.allowed, c.value) {
			return fmt.Errorf("%s: invalid value %q (allowed: %v)", c.field, c.value, c.allowed)
		}
	}
	for i, f := range s.Stacking.Filters {
		if !slices.Contains([]string{"fwhm", "wfwhm", "round", "bkg", "nbstars", "quality"}, f.Criterion) {
			return fmt.Errorf("stacking.filters[%d]: invalid criterion %q", i, f.Criterion)
		}
		if f.Unit != "" && f.Unit != "%" && f.Unit != "k" {
			return fmt.Errorf("stacking.filters[%d]: invalid unit %q", i, f.Unit)
		}
	}
	return nil
}

// SetDrizzle toggles drizzle, dropping debayer when enabling it.
func (s *Stages) SetDrizzle(on bool) {
	s.Registration.Drizzle = on
	if on {
		s.Calibration.Debayer = false
	}
}

// SetDebayer toggles calibration debayer, dropping drizzle when enabling it.
func (s *Stages) SetDebayer(on bool) {
	s.Calibration.Debayer = on
	if on {
		s.Registration.Drizzle = false
	}
	s.Normalize()
}
