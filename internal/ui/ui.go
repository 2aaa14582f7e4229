// Package ui holds terminal styling for the roadsync CLI.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/openrescue/roadsync/internal/status"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "124", Dark: "196"})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})
	dimStyle    = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true)

	badgeStyles = map[string]lipgloss.Style{
		"badge badge-blue":  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"badge badge-amber": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"badge badge-green": lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"badge":             dimStyle,
	}
)

// RenderPass styles success output.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn styles warnings.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderErr styles errors.
func RenderErr(s string) string { return errStyle.Render(s) }

// RenderAccent styles identifiers and emphasized values.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderDim styles secondary detail.
func RenderDim(s string) string { return dimStyle.Render(s) }

// RenderHeader styles section and table headers.
func RenderHeader(s string) string { return headerStyle.Render(s) }

// StatusBadge renders a request status with its badge color.
func StatusBadge(s status.Status) string {
	style, ok := badgeStyles[status.StyleClass(s)]
	if !ok {
		style = dimStyle
	}
	return style.Render(status.Label(s))
}
