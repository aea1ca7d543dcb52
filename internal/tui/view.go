package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/pzedit/internal/scene"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	dragStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F5A623"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

const keyHint = "r rename · a add · d delete · g/t/s drag · u undo · ctrl+r redo · w save · q quit"

// View renders the inspector.
func (a *App) View() string {
	s := a.session.Scene()
	title := fmt.Sprintf("⬡ PZEDIT · %s", s.Name)
	if a.session.Dirty() {
		title += " *"
	}
	leftWidth, rightWidth := a.columns()
	left := boxStyle.Width(leftWidth).Render(a.hierarchy.View())
	right := boxStyle.Width(rightWidth).Render(a.renderDetails())
	sections := []string{
		headerStyle.Render(title),
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
	}
	if a.mode == modeRename || a.mode == modeAdd {
		sections = append(sections, boxStyle.Render(a.input.View()))
	}
	if log := a.renderLogPanel(); log != "" {
		sections = append(sections, log)
	}
	status := a.statusMsg
	if status == "" {
		status = keyHint
	}
	sections = append(sections, footerStyle.Render(status))
	return strings.Join(sections, "\n")
}

func (a *App) columns() (int, int) {
	width := a.width
	if width <= 0 {
		width = 100
	}
	left := max(24, width/2-2)
	return left, max(24, width-left-6)
}

func (a *App) renderDetails() string {
	id := a.selectedID()
	if id == "" {
		return mutedStyle.Render("Empty scene. Press a to add an object.")
	}
	obj, err := a.session.Scene().GetGameObject(id)
	if err != nil {
		return mutedStyle.Render(err.Error())
	}
	lines := []string{
		titleStyle.Render(obj.Name),
		mutedStyle.Render(obj.ID),
		"",
		formatVec("position", obj.Transform.Position),
		formatVec("rotation", obj.Transform.Rotation),
		formatVec("scale", obj.Transform.Scale),
	}
	if a.drag != nil && a.drag.ObjectID == id {
		lines = append(lines, "", dragStyle.Render(fmt.Sprintf("dragging %s", a.drag.Channel)))
	}
	lines = append(lines, "", titleStyle.Render("Components"))
	if len(obj.Components) == 0 {
		lines = append(lines, mutedStyle.Render("none"))
	}
	for _, c := range obj.Components {
		lines = append(lines, componentLine(c))
	}
	return strings.Join(lines, "\n")
}

func componentLine(c scene.Component) string {
	line := fmt.Sprintf("%s  %s", c.Kind(), scene.ComponentID(c))
	if assets := scene.AssetIDsOf(c); len(assets) > 0 {
		line += mutedStyle.Render("  " + strings.Join(assets, ", "))
	}
	if c.AsComponentBase().Instance() == nil {
		line += mutedStyle.Render("  (loading)")
	}
	return line
}

func formatVec(label string, v [3]float32) string {
	return fmt.Sprintf("%-9s %7.2f %7.2f %7.2f", label, v[0], v[1], v[2])
}

func (a *App) renderLogPanel() string {
	lb := a.session.Diagnostics()
	lines, _ := lb.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(lb.Path())
	if fileName == "." || fileName == "" {
		fileName = "diagnostics"
	}
	head := titleStyle.Render(fmt.Sprintf("LOG · %s", fileName))
	return boxStyle.Render(head + "\n" + mutedStyle.Render(strings.Join(lines, "\n")))
}
