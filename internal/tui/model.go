// Package tui is the interactive front end for building a preprocessing
// script. Each stage gets its own tab of options; the final tab previews
// the generated text exactly as it would be written to disk or dispatched.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"prepflow/internal/config"
	"prepflow/internal/script"
	"prepflow/internal/session"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	tabStyle       = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("8"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 2).Bold(true).Foreground(lipgloss.Color("15")).Underline(true)
	labelStyle     = lipgloss.NewStyle().Width(22)
	focusedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	previewStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

type fieldKind int

const (
	textField fieldKind = iota
	toggleField
	enumField
)

// formField is one editable option. Text fields commit on every update so
// the preview always reflects what is on screen.
type formField struct {
	label   string
	kind    fieldKind
	input   textinput.Model
	textSet func(string)
	boolGet func() bool
	boolSet func(bool)
	enumGet func() string
	enumSet func(string)
	options []string
}

type runDoneMsg struct {
	executed int
	err      error
}

type saveDoneMsg struct {
	err error
}

// Model drives the stage option form.
type Model struct {
	stages *config.Stages
	sum    session.Summary

	tabs      []string
	activeTab int
	fields    [][]*formField
	focus     int

	preview  string
	status   string
	statusOK bool
	quitting bool

	keys keymap
	help help.Model

	runFn  func(config.Stages) (int, error)
	saveFn func(config.Stages) error
}

// New builds the form over the given stage options and session summary.
// runFn dispatches the current script to the host; saveFn persists the
// options. Either may be nil to disable the action.
func New(stages config.Stages, sum session.Summary, runFn func(config.Stages) (int, error), saveFn func(config.Stages) error) *Model {
	st := &config.Stages{}
	*st = stages
	st.Normalize()

	m := &Model{
		stages: st,
		sum:    sum,
		tabs:   []string{"Convert", "Calibration", "Registration", "Stacking", "Script"},
		keys:   newKeymap(),
		help:   help.New(),
		runFn:  runFn,
		saveFn: saveFn,
	}
	m.fields = [][]*formField{
		m.convertFields(),
		m.calibrationFields(),
		m.registrationFields(),
		m.stackingFields(),
		nil, // preview tab has no fields
	}
	m.refreshPreview()
	m.setFocus(0)
	return m
}

func (m *Model) convertFields() []*formField {
	c := &m.stages.Convert
	return []*formField{
		newText("Sequence name", c.Basename, func(v string) { c.Basename = v }),
		newInt("Start index", c.StartIndex, func(v int) { c.StartIndex = v }),
		newText("Output directory", c.OutDir, func(v string) { c.OutDir = v }),
		newToggle("Debayer on convert", func() bool { return c.Debayer }, func(v bool) { c.Debayer = v }),
		newToggle("Create master bias", func() bool { return c.CreateBias }, func(v bool) { c.CreateBias = v }),
		newToggle("Create master flat", func() bool { return c.CreateFlat }, func(v bool) { c.CreateFlat = v }),
		newEnum("Flat bias source", []string{"master", "synthetic", "none"},
			func() string { return c.FlatBiasSource }, func(v string) { c.FlatBiasSource = v }),
		newText("Synthetic bias level", c.SyntheticBiasLevel, func(v string) { c.SyntheticBiasLevel = v }),
		newToggle("Create master dark", func() bool { return c.CreateDark }, func(v bool) { c.CreateDark = v }),
	}
}

func (m *Model) calibrationFields() []*formField {
	c := &m.stages.Calibration
	s := m.stages
	return []*formField{
		newText("Sequence name", c.Sequence, func(v string) { c.Sequence = v }),
		newText("Prefix", c.Prefix, func(v string) { c.Prefix = v }),
		newToggle("Use master dark", func() bool { return c.UseDark }, func(v bool) { c.UseDark = v }),
		newText("Dark path", c.DarkPath, func(v string) { c.DarkPath = v }),
		newToggle("Use master flat", func() bool { return c.UseFlat }, func(v bool) { c.UseFlat = v }),
		newText("Flat path", c.FlatPath, func(v string) { c.FlatPath = v }),
		newToggle("Use master bias", func() bool { return c.UseBias }, func(v bool) { c.UseBias = v }),
		newText("Bias path", c.BiasPath, func(v string) { c.BiasPath = v }),
		newEnum("Dark optimization", []string{"none", "auto", "exposure"},
			func() string { return c.DarkOptimization }, func(v string) { c.DarkOptimization = v }),
		newEnum("Cosmetic correction", []string{"none", "dark", "bpm"},
			func() string { return c.Cosmetic }, func(v string) { c.Cosmetic = v }),
		newFloat("Cold sigma", c.ColdSigma, func(v float64) { c.ColdSigma = v }),
		newFloat("Hot sigma", c.HotSigma, func(v float64) { c.HotSigma = v }),
		newText("Bad pixel map", c.BPMPath, func(v string) { c.BPMPath = v }),
		newToggle("CFA", func() bool { return c.CFA }, func(v bool) { c.CFA = v }),
		newToggle("Equalize CFA", func() bool { return c.EqualizeCFA }, func(v bool) { c.EqualizeCFA = v }),
		// Debayer and drizzle need opposite input data, so enabling one
		// clears the other.
		newToggle("Debayer", func() bool { return c.Debayer }, func(v bool) { s.SetDebayer(v) }),
		newToggle("Fix X-Trans", func() bool { return c.FixXTrans }, func(v bool) { c.FixXTrans = v }),
	}
}

func (m *Model) registrationFields() []*formField {
	r := &m.stages.Registration
	s := m.stages
	return []*formField{
		newText("Sequence name", r.Sequence, func(v string) { r.Sequence = v }),
		newText("Prefix", r.Prefix, func(v string) { r.Prefix = v }),
		newEnum("Transformation", []string{"homography", "affine", "similarity", "euclidean", "shift"},
			func() string { return r.Transformation }, func(v string) { r.Transformation = v }),
		newEnum("Registration layer", []string{"green", "red", "blue"},
			func() string { return r.Layer }, func(v string) { r.Layer = v }),
		newInt("Min star pairs", r.MinPairs, func(v int) { r.MinPairs = v }),
		newInt("Max stars", r.MaxStars, func(v int) { r.MaxStars = v }),
		newToggle("Two-pass", func() bool { return r.TwoPass }, func(v bool) { r.TwoPass = v; s.Normalize() }),
		newEnum("Framing", []string{"current", "max", "min", "cog"},
			func() string { return r.Framing }, func(v string) { r.Framing = v; s.Normalize() }),
		newToggle("Drizzle", func() bool { return r.Drizzle }, func(v bool) { s.SetDrizzle(v) }),
		newFloat("Drizzle scale", r.DrizzleScale, func(v float64) { r.DrizzleScale = v }),
		newFloat("Drizzle pixfrac", r.DrizzlePixFrac, func(v float64) { r.DrizzlePixFrac = v }),
		newEnum("Drizzle kernel", []string{"square", "point", "turbo", "gaussian", "lanczos2", "lanczos3"},
			func() string { return r.DrizzleKernel }, func(v string) { r.DrizzleKernel = v }),
		newEnum("Interpolation", []string{"lanczos4", "cubic", "linear", "nearest", "area", "none"},
			func() string { return r.Interpolation }, func(v string) { r.Interpolation = v }),
		newToggle("Undistort", func() bool { return r.Undistort }, func(v bool) { r.Undistort = v }),
	}
}

func (m *Model) stackingFields() []*formField {
	st := &m.stages.Stacking
	s := m.stages
	return []*formField{
		newText("Sequence name", st.Sequence, func(v string) { st.Sequence = v }),
		newText("Output name", st.OutputName, func(v string) { st.OutputName = v }),
		newEnum("Method", []string{"rejection", "sum", "median", "max", "min"},
			func() string { return st.Method }, func(v string) { st.Method = v }),
		newEnum("Rejection", []string{"sigma", "winsorized", "mad", "percentile", "gesd", "linearfit", "none"},
			func() string { return st.Rejection }, func(v string) { st.Rejection = v }),
		newFloat("Sigma low", st.SigmaLow, func(v float64) { st.SigmaLow = v }),
		newFloat("Sigma high", st.SigmaHigh, func(v float64) { st.SigmaHigh = v }),
		newEnum("Normalization", []string{"addscale", "none", "add", "mul", "mulscale"},
			func() string { return st.Normalization }, func(v string) { st.Normalization = v }),
		newEnum("Weighting", []string{"none", "noise", "wfwhm", "nbstars", "nbstack"},
			func() string { return st.Weighting }, func(v string) { st.Weighting = v }),
		newEnum("Rejection maps", []string{"none", "one", "two"},
			func() string { return st.RejectionMaps }, func(v string) { st.RejectionMaps = v }),
		newToggle("RGB equalization", func() bool { return st.RGBEqualize }, func(v bool) { st.RGBEqualize = v }),
		newToggle("Output normalization", func() bool { return st.OutputNorm }, func(v bool) { st.OutputNorm = v }),
		newToggle("32-bit output", func() bool { return st.Out32Bit }, func(v bool) { st.Out32Bit = v }),
		newToggle("Flip bottom-up", func() bool { return st.FlipBottomUp }, func(v bool) { st.FlipBottomUp = v }),
		newToggle("Maximize framing", func() bool { return st.Maximize }, func(v bool) { st.Maximize = v; s.Normalize() }),
		newToggle("Overlap normalization", func() bool { return st.OverlapNorm }, func(v bool) { st.OverlapNorm = v; s.Normalize() }),
		newInt("Feather (px)", st.FeatherPx, func(v int) { st.FeatherPx = v }),
	}
}

func newText(label, value string, set func(string)) *formField {
	ti := textinput.New()
	ti.SetValue(value)
	ti.CharLimit = 128
	ti.Width = 36
	return &formField{label: label, kind: textField, input: ti, textSet: set}
}

func newInt(label string, value int, set func(int)) *formField {
	return newText(label, strconv.Itoa(value), func(v string) {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			set(n)
		}
	})
}

func newFloat(label string, value float64, set func(float64)) *formField {
	return newText(label, strconv.FormatFloat(value, 'f', -1, 64), func(v string) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			set(f)
		}
	})
}

func newToggle(label string, get func() bool, set func(bool)) *formField {
	return &formField{label: label, kind: toggleField, boolGet: get, boolSet: set}
}

func newEnum(label string, options []string, get func() string, set func(string)) *formField {
	return &formField{label: label, kind: enumField, options: options, enumGet: get, enumSet: set}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runDoneMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			m.statusOK = false
		} else {
			m.status = fmt.Sprintf("run completed, %d commands executed", msg.executed)
			m.statusOK = true
		}
		return m, nil

	case saveDoneMsg:
		if msg.err != nil {
			m.status = "save failed: " + msg.err.Error()
			m.statusOK = false
		} else {
			m.status = "settings saved"
			m.statusOK = true
		}
		return m, nil

	case tea.KeyMsg:
		cur := m.currentField()

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if cur == nil || cur.kind != textField {
				m.help.ShowAll = !m.help.ShowAll
				return m, nil
			}

		case key.Matches(msg, m.keys.NextTab):
			m.commitText()
			m.activeTab = (m.activeTab + 1) % len(m.tabs)
			m.enterTab()
			return m, nil

		case key.Matches(msg, m.keys.PrevTab):
			m.commitText()
			m.activeTab = (m.activeTab - 1 + len(m.tabs)) % len(m.tabs)
			m.enterTab()
			return m, nil

		case key.Matches(msg, m.keys.NextField):
			m.commitText()
			m.moveFocus(1)
			return m, nil

		case key.Matches(msg, m.keys.PrevField):
			m.commitText()
			m.moveFocus(-1)
			return m, nil

		case key.Matches(msg, m.keys.Toggle):
			if cur != nil && cur.kind == toggleField {
				cur.boolSet(!cur.boolGet())
				m.refreshPreview()
				return m, nil
			}

		case key.Matches(msg, m.keys.CycleNext):
			if cur != nil && cur.kind == enumField {
				cur.enumSet(cycle(cur.options, cur.enumGet(), 1))
				m.refreshPreview()
				return m, nil
			}

		case key.Matches(msg, m.keys.CyclePrev):
			if cur != nil && cur.kind == enumField {
				cur.enumSet(cycle(cur.options, cur.enumGet(), -1))
				m.refreshPreview()
				return m, nil
			}

		case key.Matches(msg, m.keys.Generate):
			m.commitText()
			m.refreshPreview()
			m.activeTab = len(m.tabs) - 1
			m.status = "script preview updated"
			m.statusOK = true
			return m, nil

		case key.Matches(msg, m.keys.Run):
			m.commitText()
			m.refreshPreview()
			if m.runFn == nil {
				m.status = "running is not available here"
				m.statusOK = false
				return m, nil
			}
			stages := *m.stages
			run := m.runFn
			m.status = "running script..."
			m.statusOK = true
			return m, func() tea.Msg {
				n, err := run(stages)
				return runDoneMsg{executed: n, err: err}
			}

		case key.Matches(msg, m.keys.Save):
			m.commitText()
			if m.saveFn == nil {
				m.status = "saving is not available here"
				m.statusOK = false
				return m, nil
			}
			stages := *m.stages
			save := m.saveFn
			return m, func() tea.Msg {
				return saveDoneMsg{err: save(stages)}
			}
		}

		// Everything else goes to the focused text input.
		if cur != nil && cur.kind == textField {
			var cmd tea.Cmd
			cur.input, cmd = cur.input.Update(msg)
			cur.textSet(cur.input.Value())
			m.refreshPreview()
			return m, cmd
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("prepflow"))
	b.WriteString("  ")
	b.WriteString(m.summaryLine())
	b.WriteString("\n\n")

	var tabs []string
	for i, name := range m.tabs {
		if i == m.activeTab {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, tabStyle.Render(name))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")

	if m.activeTab == len(m.tabs)-1 {
		b.WriteString(previewStyle.Render(m.preview))
		b.WriteString("\n")
	} else {
		for i, f := range m.fields[m.activeTab] {
			cursor := "  "
			if i == m.focus {
				cursor = focusedStyle.Render("> ")
			}
			b.WriteString(cursor)
			b.WriteString(labelStyle.Render(f.label))
			b.WriteString(m.renderValue(f, i == m.focus))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.status != "" {
		if m.statusOK {
			b.WriteString(statusStyle.Render(m.status))
		} else {
			b.WriteString(errorStyle.Render(m.status))
		}
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderValue(f *formField, focused bool) string {
	switch f.kind {
	case toggleField:
		if f.boolGet() {
			return "[x]"
		}
		return "[ ]"
	case enumField:
		v := f.enumGet()
		if focused {
			return focusedStyle.Render("< " + v + " >")
		}
		return "  " + v
	default:
		return f.input.View()
	}
}

func (m *Model) summaryLine() string {
	return fmt.Sprintf("biases:%d flats:%d darks:%d lights:%d",
		m.sum.Count(session.Biases),
		m.sum.Count(session.Flats),
		m.sum.Count(session.Darks),
		m.sum.Count(session.Lights))
}

// Preview returns the current script text, for callers that want to write
// it out after the program exits.
func (m *Model) Preview() string {
	return m.preview
}

// Stages returns the edited options.
func (m *Model) Stages() config.Stages {
	return *m.stages
}

func (m *Model) refreshPreview() {
	m.preview = script.Generate(*m.stages, m.sum).Text()
}

func (m *Model) currentField() *formField {
	fields := m.fields[m.activeTab]
	if len(fields) == 0 || m.focus < 0 || m.focus >= len(fields) {
		return nil
	}
	return fields[m.focus]
}

func (m *Model) commitText() {
	if cur := m.currentField(); cur != nil && cur.kind == textField {
		cur.textSet(cur.input.Value())
		m.refreshPreview()
	}
}

func (m *Model) enterTab() {
	m.focus = 0
	m.setFocus(0)
}

func (m *Model) moveFocus(delta int) {
	fields := m.fields[m.activeTab]
	if len(fields) == 0 {
		return
	}
	m.setFocus((m.focus + delta + len(fields)) % len(fields))
}

func (m *Model) setFocus(idx int) {
	for _, tab := range m.fields {
		for _, f := range tab {
			if f.kind == textField {
				f.input.Blur()
			}
		}
	}
	m.focus = idx
	if cur := m.currentField(); cur != nil && cur.kind == textField {
		cur.input.Focus()
	}
}

func cycle(options []string, current string, delta int) string {
	idx := 0
	for i, o := range options {
		if o == current {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(options)) % len(options)
	return options[idx]
}
