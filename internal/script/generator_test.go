package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepflow/internal/config"
	"prepflow/internal/session"
)

func fullSummary() session.Summary {
	return session.Summary{
		Dir: "/data/m31",
		Counts: map[session.Kind]int{
			session.Biases: 20,
			session.Flats:  20,
			session.Darks:  20,
			session.Lights: 120,
		},
	}
}

func TestGenerateBlockOrder(t *testing.T) {
	s := Generate(config.DefaultStages(), fullSummary())
	text := s.Text()

	headers := []string{
		"# --- Master Bias ---",
		"# --- Master Flat ---",
		"# --- Master Dark ---",
		"# --- Lights Conversion ---",
		"# --- Calibration ---",
		"# --- Registration ---",
		"# --- Stacking ---",
		"# --- Post-Processing ---",
	}
	last := -1
	for _, h := range headers {
		idx := strings.Index(text, h)
		require.GreaterOrEqual(t, idx, 0, "missing block %s", h)
		assert.Greater(t, idx, last, "block %s out of order", h)
		last = idx
	}

	assert.True(t, strings.HasPrefix(text, "# Siril Preprocessing Script\nrequires 1.4.0\n"))
}

func TestGenerateDeterministic(t *testing.T) {
	stages := config.DefaultStages()
	sum := fullSummary()
	assert.Equal(t, Generate(stages, sum).Text(), Generate(stages, sum).Text())
}

func TestGenerateDefaultPipeline(t *testing.T) {
	s := Generate(config.DefaultStages(), fullSummary())
	cmds := s.Commands()

	assert.Contains(t, cmds, "stack bias rej 3 3 -nonorm -out=../masters/bias_stacked")
	assert.Contains(t, cmds, "calibrate flat -bias=../masters/bias_stacked")
	assert.Contains(t, cmds, "stack pp_flat rej 3 3 -norm=mul -out=../masters/pp_flat_stacked")
	assert.Contains(t, cmds, "stack dark rej 3 3 -nonorm -out=../masters/dark_stacked")
	assert.Contains(t, cmds, "convert light -start=1 -out=../process")
	assert.Contains(t, cmds,
		"calibrate light -dark=../masters/dark_stacked -flat=../masters/pp_flat_stacked -cc=dark -coldsigma=3 -hotsigma=3 -prefix=pp_")
	assert.Contains(t, cmds, "register pp_light -layer=1 -minpairs=10 -maxstars=2000 -prefix=r_")
	assert.Contains(t, cmds, "stack r_pp_light rej w 3 3 -norm=addscale -out=result")
	assert.Contains(t, cmds, "load result")
	assert.Contains(t, cmds, "mirrorx -bottomup")
	assert.Contains(t, cmds, "save ../result_$LIVETIME:%d$s")
	assert.Equal(t, "close", cmds[len(cmds)-1])
}

func TestGenerateEmptyDirsOmitBlocks(t *testing.T) {
	sum := fullSummary()
	sum.Counts[session.Biases] = 0
	sum.Counts[session.Darks] = 0

	text := Generate(config.DefaultStages(), sum).Text()
	assert.NotContains(t, text, "Master Bias")
	assert.NotContains(t, text, "Master Dark")
	assert.Contains(t, text, "Master Flat")
	assert.Contains(t, text, "Lights Conversion")
}

func TestGenerateNoLightsOmitsPipeline(t *testing.T) {
	sum := fullSummary()
	sum.Counts[session.Lights] = 0

	text := Generate(config.DefaultStages(), sum).Text()
	assert.Contains(t, text, "Master Bias")
	assert.NotContains(t, text, "Lights Conversion")
	assert.NotContains(t, text, "Calibration")
	assert.NotContains(t, text, "Registration")
	assert.NotContains(t, text, "Stacking")
	assert.NotContains(t, text, "Post-Processing")
}

func TestGenerateDisabledMastersOmitBlocks(t *testing.T) {
	stages := config.DefaultStages()
	stages.Convert.CreateBias = false
	stages.Convert.CreateFlat = false
	stages.Convert.CreateDark = false

	text := Generate(stages, fullSummary()).Text()
	assert.NotContains(t, text, "Master Bias")
	assert.NotContains(t, text, "Master Flat")
	assert.NotContains(t, text, "Master Dark")
	assert.Contains(t, text, "Lights Conversion")
}

func TestGenerateFlatBiasVariants(t *testing.T) {
	stages := config.DefaultStages()

	stages.Convert.FlatBiasSource = "synthetic"
	text := Generate(stages, fullSummary()).Text()
	assert.Contains(t, text, "calibrate flat -bias='=64*$OFFSET'")
	assert.Contains(t, text, "stack pp_flat rej 3 3 -norm=mul")

	stages.Convert.FlatBiasSource = "none"
	text = Generate(stages, fullSummary()).Text()
	assert.NotContains(t, text, "calibrate flat")
	assert.Contains(t, text, "stack flat rej 3 3 -norm=mul -out=../masters/pp_flat_stacked")
}

func TestGenerateDrizzleExcludesDebayer(t *testing.T) {
	stages := config.DefaultStages()
	stages.Calibration.Debayer = true
	stages.Registration.Drizzle = true

	text := Generate(stages, fullSummary()).Text()
	assert.Contains(t, text, "-drizzle -scale=2 -pixfrac=1 -kernel=square")
	assert.Contains(t, text,
		"register pp_light -layer=1 -minpairs=10 -maxstars=2000 -drizzle -scale=2 -pixfrac=1 -kernel=square -flat=../masters/pp_flat_stacked -prefix=r_")
	for _, cmd := range Generate(stages, fullSummary()).Commands() {
		if strings.HasPrefix(cmd, "calibrate light") {
			assert.NotContains(t, cmd, "-debayer")
		}
	}
}

func TestGenerateDebayerExcludesDrizzle(t *testing.T) {
	stages := config.DefaultStages()
	stages.SetDebayer(true)

	found := false
	for _, cmd := range Generate(stages, fullSummary()).Commands() {
		if strings.HasPrefix(cmd, "calibrate light") {
			found = true
			assert.Contains(t, cmd, "-debayer")
		}
		assert.NotContains(t, cmd, "-drizzle")
	}
	assert.True(t, found)
}

func TestGenerateTwoPass(t *testing.T) {
	stages := config.DefaultStages()
	stages.Registration.TwoPass = true
	stages.Registration.Framing = "max"
	stages.Registration.Layer = "red"
	stages.Stacking.Maximize = true
	stages.Stacking.OverlapNorm = true
	stages.Stacking.FeatherPx = 20

	cmds := Generate(stages, fullSummary()).Commands()
	assert.Contains(t, cmds, "register pp_light -2pass -layer=0 -minpairs=10 -maxstars=2000")
	assert.Contains(t, cmds, "seqapplyreg pp_light -interp=la -framing=max -prefix=r_")

	var stack string
	for _, cmd := range cmds {
		if strings.HasPrefix(cmd, "stack r_pp_light") {
			stack = cmd
		}
	}
	assert.Contains(t, stack, " -maximize -overlap_norm -feather=20")
}

func TestGenerateOnePassVariants(t *testing.T) {
	stages := config.DefaultStages()
	stages.Registration.Transformation = "shift"
	stages.Registration.Interpolation = "cubic"
	stages.Registration.Undistort = true
	stages.Registration.Layer = "blue"
	stages.Calibration.UseFlat = false

	cmds := Generate(stages, fullSummary()).Commands()
	assert.Contains(t, cmds,
		"register pp_light -transf=shift -layer=2 -minpairs=10 -maxstars=2000 -interp=cu -disto=image -prefix=r_")
}

func TestGenerateStackingOptions(t *testing.T) {
	stages := config.DefaultStages()
	stages.Stacking.Rejection = "linearfit"
	stages.Stacking.SigmaLow = 2.5
	stages.Stacking.SigmaHigh = 4
	stages.Stacking.Normalization = "mulscale"
	stages.Stacking.Weighting = "wfwhm"
	stages.Stacking.RGBEqualize = true
	stages.Stacking.Out32Bit = true
	stages.Stacking.RejectionMaps = "two"
	stages.Stacking.Filters = []config.FrameFilter{
		{Criterion: "fwhm", Value: "90", Unit: "%"},
		{Criterion: "round", Value: "2", Unit: "k"},
		{Criterion: "nbstars", Value: "", Unit: "%"},
		{Criterion: "bkg", Value: "0.3", Unit: ""},
	}

	cmds := Generate(stages, fullSummary()).Commands()
	assert.Contains(t, cmds,
		"stack r_pp_light rej l 2.5 4 -norm=mulscale -weight=wfwhm -filter-fwhm=90% -filter-round=2k -filter-bkg=0.3 -rgb_equal -32b -out=result -rejmaps")
}

func TestGenerateNonRejectionMethodSkipsRejectionOptions(t *testing.T) {
	stages := config.DefaultStages()
	stages.Stacking.Method = "median"
	stages.Stacking.Filters = []config.FrameFilter{{Criterion: "fwhm", Value: "90", Unit: "%"}}

	cmds := Generate(stages, fullSummary()).Commands()
	assert.Contains(t, cmds, "stack r_pp_light median -out=result")
}

func TestGenerateNoRejectionAlgorithm(t *testing.T) {
	stages := config.DefaultStages()
	stages.Stacking.Rejection = "none"

	cmds := Generate(stages, fullSummary()).Commands()
	assert.Contains(t, cmds, "stack r_pp_light rej -norm=addscale -out=result")
}

func TestCommandsStripCommentsAndBlanks(t *testing.T) {
	s := Generate(config.DefaultStages(), fullSummary())
	for _, cmd := range s.Commands() {
		assert.NotEmpty(t, cmd)
		assert.False(t, strings.HasPrefix(cmd, "#"))
	}
	assert.Greater(t, s.LineCount(), len(s.Commands()))
}
