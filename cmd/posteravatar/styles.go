package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Palette
const (
	colorAccent = lipgloss.Color("#7D56F4")
	colorPortal = lipgloss.Color("#97CE4C")
	colorMuted  = lipgloss.Color("#767676")
	colorWarn   = lipgloss.Color("#F2C94C")
	colorError  = lipgloss.Color("#EB5757")
)

// styles holds the terminal styles bound to one output. The renderer picks the color
// profile from that output, so redirected output stays plain.
type styles struct {
	title    lipgloss.Style
	label    lipgloss.Style
	header   lipgloss.Style
	cell     lipgloss.Style
	border   lipgloss.Style
	stamp    lipgloss.Style
	avatar   lipgloss.Style
	speaking lipgloss.Style
	notice   lipgloss.Style
	levels   map[string]lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:    r.NewStyle().Bold(true).Foreground(colorAccent),
		label:    r.NewStyle().Width(10).Foreground(colorMuted),
		header:   r.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1),
		cell:     r.NewStyle().Padding(0, 1),
		border:   r.NewStyle().Foreground(colorMuted),
		stamp:    r.NewStyle().Foreground(colorMuted),
		avatar:   r.NewStyle().Bold(true).Foreground(colorPortal),
		speaking: r.NewStyle().Italic(true).Foreground(colorPortal),
		notice:   r.NewStyle().Faint(true),
		levels: map[string]lipgloss.Style{
			"debug": r.NewStyle().Foreground(colorMuted),
			"info":  r.NewStyle().Foreground(colorPortal),
			"warn":  r.NewStyle().Foreground(colorWarn),
			"error": r.NewStyle().Bold(true).Foreground(colorError),
		},
	}
}

// level renders a log level tag of fixed width.
func (s styles) level(name string) string {
	st, ok := s.levels[name]
	if !ok {
		st = s.levels["info"]
	}
	return st.Width(5).Render(name)
}
