package script

import (
	"fmt"
	"strconv"
	"strings"

	"prepflow/internal/config"
	"prepflow/internal/session"
)

// Relative directory layout shared by every generated script. The working
// directory at script start is the session root.
const (
	dirBiases  = "biases"
	dirFlats   = "flats"
	dirDarks   = "darks"
	dirLights  = "lights"
	dirProcess = "../process"
	dirMasters = "../masters"
)

var interpCodes = map[string]string{
	"lanczos4": "la",
	"cubic":    "cu",
	"linear":   "li",
	"nearest":  "ne",
	"area":     "ar",
	"none":     "no",
}

var layerFlags = map[string]string{
	"green": " -layer=1",
	"red":   " -layer=0",
	"blue":  " -layer=2",
}

var rejectionChars = map[string]string{
	"sigma":      "s",
	"winsorized": "w",
	"mad":        "a",
	"percentile": "p",
	"gesd":       "g",
	"linearfit":  "l",
}

// Generate renders the script for the given stage options and session
// summary. Master creation blocks are emitted only when their source
// directory holds frames, and the lights pipeline only when lights exist.
// The output depends on nothing else, so the same inputs always produce
// identical text.
func Generate(stages config.Stages, sum session.Summary) *Script {
	stages.Normalize()

	b := &builder{}
	b.comment("Siril Preprocessing Script")
	b.add("requires " + RequiredVersion)
	b.blank()

	if stages.Convert.CreateBias && sum.Has(session.Biases) {
		writeMasterBias(b)
	}
	if stages.Convert.CreateFlat && sum.Has(session.Flats) {
		writeMasterFlat(b, stages.Convert)
	}
	if stages.Convert.CreateDark && sum.Has(session.Darks) {
		writeMasterDark(b)
	}

	if sum.Has(session.Lights) {
		writeLights(b, stages.Convert)
		writeCalibration(b, stages.Calibration)
		writeRegistration(b, stages.Registration, stages.Calibration)
		writeStacking(b, stages.Stacking)
		writePost(b, stages.Stacking)
	}

	return b.script()
}

func writeMasterBias(b *builder) {
	b.comment("--- Master Bias ---")
	b.add("cd " + dirBiases)
	b.add("convert bias -out=" + dirProcess)
	b.add("cd " + dirProcess)
	b.add("stack bias rej 3 3 -nonorm -out=" + dirMasters + "/bias_stacked")
	b.add("cd ..")
	b.blank()
}

func writeMasterFlat(b *builder, conv config.Convert) {
	b.comment("--- Master Flat ---")
	b.add("cd " + dirFlats)
	b.add("convert flat -out=" + dirProcess)
	b.add("cd " + dirProcess)

	seq := "flat"
	switch conv.FlatBiasSource {
	case "synthetic":
		b.add("calibrate flat -bias='=" + conv.SyntheticBiasLevel + "'")
		seq = "pp_flat"
	case "none":
	default: // master
		b.add("calibrate flat -bias=" + dirMasters + "/bias_stacked")
		seq = "pp_flat"
	}

	b.add("stack " + seq + " rej 3 3 -norm=mul -out=" + dirMasters + "/pp_flat_stacked")
	b.add("cd ..")
	b.blank()
}

func writeMasterDark(b *builder) {
	b.comment("--- Master Dark ---")
	b.add("cd " + dirDarks)
	b.add("convert dark -out=" + dirProcess)
	b.add("cd " + dirProcess)
	b.add("stack dark rej 3 3 -nonorm -out=" + dirMasters + "/dark_stacked")
	b.add("cd ..")
	b.blank()
}

func writeLights(b *builder, conv config.Convert) {
	b.comment("--- Lights Conversion ---")
	b.add("cd " + dirLights)

	cmd := "convert " + conv.Basename
	if conv.StartIndex > 0 {
		cmd += " -start=" + strconv.Itoa(conv.StartIndex)
	}
	outDir := conv.OutDir
	if outDir != "" {
		cmd += " -out=" + outDir
	} else {
		outDir = dirProcess
	}
	if conv.Debayer {
		cmd += " -debayer"
	}
	b.add(cmd)

	// Downstream commands expect the sequence directory as cwd.
	b.add("cd " + outDir)
	b.blank()
}

func writeCalibration(b *builder, cal config.Calibration) {
	b.comment("--- Calibration ---")

	cmd := "calibrate " + cal.Sequence
	if cal.UseDark {
		cmd += " -dark=" + cal.DarkPath
	}
	if cal.UseFlat {
		cmd += " -flat=" + cal.FlatPath
	}
	if cal.UseBias {
		cmd += " -bias=" + cal.BiasPath
	}

	switch cal.Cosmetic {
	case "dark":
		cmd += " -cc=dark -coldsigma=" + formatNum(cal.ColdSigma) + " -hotsigma=" + formatNum(cal.HotSigma)
	case "bpm":
		cmd += " -cc=bpm " + cal.BPMPath
	}

	if cal.CFA {
		cmd += " -cfa"
	}
	if cal.EqualizeCFA {
		cmd += " -equalize_cfa"
	}
	if cal.Debayer {
		cmd += " -debayer"
	}
	if cal.Prefix != "" {
		cmd += " -prefix=" + cal.Prefix
	}
	if cal.FixXTrans {
		cmd += " -fix_xtrans"
	}

	switch cal.DarkOptimization {
	case "auto":
		cmd += " -opt"
	case "exposure":
		cmd += " -opt=exp"
	}

	b.add(cmd)
	b.blank()
}

func writeRegistration(b *builder, reg config.Registration, cal config.Calibration) {
	b.comment("--- Registration ---")

	layer := layerFlags[reg.Layer]
	if layer == "" {
		layer = layerFlags["green"]
	}
	interp := interpCodes[reg.Interpolation]
	if interp == "" {
		interp = "la"
	}

	drizzleOpts := func() string {
		opts := fmt.Sprintf(" -drizzle -scale=%s -pixfrac=%s -kernel=%s",
			formatNum(reg.DrizzleScale), formatNum(reg.DrizzlePixFrac),
			strings.ToLower(reg.DrizzleKernel))
		if cal.UseFlat {
			opts += " -flat=" + cal.FlatPath
		}
		return opts
	}

	if reg.TwoPass {
		b.add(fmt.Sprintf("register %s -2pass%s -minpairs=%d -maxstars=%d",
			reg.Sequence, layer, reg.MinPairs, reg.MaxStars))

		cmd := "seqapplyreg " + reg.Sequence
		if reg.Drizzle {
			cmd += drizzleOpts()
		} else {
			cmd += " -interp=" + interp
			if reg.Undistort {
				cmd += " -disto=image"
			}
		}
		cmd += " -framing=" + reg.Framing
		if reg.Prefix != "" {
			cmd += " -prefix=" + reg.Prefix
		}
		b.add(cmd)
	} else {
		cmd := "register " + reg.Sequence
		if reg.Transformation != "homography" && reg.Transformation != "" {
			cmd += " -transf=" + reg.Transformation
		}
		cmd += layer
		cmd += fmt.Sprintf(" -minpairs=%d -maxstars=%d", reg.MinPairs, reg.MaxStars)

		if reg.Drizzle {
			cmd += drizzleOpts()
		} else {
			if interp != "la" {
				cmd += " -interp=" + interp
			}
			if reg.Undistort {
				cmd += " -disto=image"
			}
		}
		if reg.Prefix != "" {
			cmd += " -prefix=" + reg.Prefix
		}
		b.add(cmd)
	}
	b.blank()
}

func writeStacking(b *builder, stk config.Stacking) {
	b.comment("--- Stacking ---")

	method := " rej"
	switch stk.Method {
	case "sum":
		method = " sum"
	case "median":
		method = " median"
	case "max":
		method = " max"
	case "min":
		method = " min"
	}

	cmd := "stack " + stk.Sequence + method

	if method == " rej" {
		if char, ok := rejectionChars[stk.Rejection]; ok {
			cmd += fmt.Sprintf(" %s %s %s", char, formatNum(stk.SigmaLow), formatNum(stk.SigmaHigh))
		}

		switch stk.Normalization {
		case "none":
			cmd += " -nonorm"
		case "add":
			cmd += " -norm=add"
		case "mul":
			cmd += " -norm=mul"
		case "mulscale":
			cmd += " -norm=mulscale"
		default:
			cmd += " -norm=addscale"
		}

		switch stk.Weighting {
		case "noise", "wfwhm", "nbstars", "nbstack":
			cmd += " -weight=" + stk.Weighting
		}

		for _, f := range stk.Filters {
			val := strings.TrimSpace(f.Value)
			if val == "" {
				continue
			}
			cmd += fmt.Sprintf(" -filter-%s=%s%s", f.Criterion, val, f.Unit)
		}
	}

	if stk.RGBEqualize {
		cmd += " -rgb_equal"
	}
	if stk.OutputNorm {
		cmd += " -output_norm"
	}
	if stk.Out32Bit {
		cmd += " -32b"
	}
	if stk.OutputName != "" {
		cmd += " -out=" + stk.OutputName
	}

	if stk.Maximize {
		cmd += " -maximize"
		if stk.OverlapNorm {
			cmd += " -overlap_norm"
		}
	}
	if stk.FeatherPx > 0 {
		cmd += " -feather=" + strconv.Itoa(stk.FeatherPx)
	}

	switch stk.RejectionMaps {
	case "one":
		cmd += " -rejmap"
	case "two":
		cmd += " -rejmaps"
	}

	b.add(cmd)
	b.blank()
}

func writePost(b *builder, stk config.Stacking) {
	b.comment("--- Post-Processing ---")
	b.add("load " + stk.OutputName)
	if stk.FlipBottomUp {
		b.add("mirrorx -bottomup")
	}
	b.add("save ../" + stk.OutputName + "_$LIVETIME:%d$s")
	b.add("cd ..")
	b.add("close")
}

// formatNum renders sigma and scale values without a trailing .0 so the
// common integer settings read the way they do in hand-written scripts.
func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
