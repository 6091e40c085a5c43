// Package script renders stage options into Siril script text. Generation
// is pure: it depends only on the stage options and the session summary,
// never on the state of a host connection.
package script

import "strings"

// RequiredVersion is the minimum Siril version the generated commands need.
const RequiredVersion = "1.4.0"

// Script is a rendered command sequence. Lines are kept verbatim so the
// text artifact can be written out for manual use.
type Script struct {
	lines []string
}

// Text returns the full script, comments and spacing included.
func (s *Script) Text() string {
	return strings.Join(s.lines, "\n")
}

// Commands returns the executable lines in order, with comments and blank
// lines stripped. This is what gets dispatched to the host.
func (s *Script) Commands() []string {
	var cmds []string
	for _, line := range s.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		cmds = append(cmds, trimmed)
	}
	return cmds
}

// LineCount returns the total number of lines including comments.
func (s *Script) LineCount() int {
	return len(s.lines)
}

type builder struct {
	lines []string
}

func (b *builder) add(line string) {
	b.lines = append(b.lines, line)
}

func (b *builder) blank() {
	b.lines = append(b.lines, "")
}

func (b *builder) comment(text string) {
	b.lines = append(b.lines, "# "+text)
}

func (b *builder) script() *Script {
	return &Script{lines: b.lines}
}
