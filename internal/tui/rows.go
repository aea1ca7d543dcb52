package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/kingrea/pzedit/internal/scene"
)

// objectRow implements list.Item for one object of the hierarchy.
type objectRow struct {
	id         string
	name       string
	depth      int
	components int
	position   [3]float32
}

func (r objectRow) Title() string {
	return strings.Repeat("  ", r.depth) + r.name
}

func (r objectRow) Description() string {
	return fmt.Sprintf("%s%s · %d components · (%.2f, %.2f, %.2f)",
		strings.Repeat("  ", r.depth), r.id, r.components, r.position[0], r.position[1], r.position[2])
}

func (r objectRow) FilterValue() string { return r.name }

// hierarchyRows flattens s depth-first, parents before children.
func hierarchyRows(s *scene.Scene) []objectRow {
	var rows []objectRow
	var visit func(objs []*scene.Object, depth int)
	visit = func(objs []*scene.Object, depth int) {
		for _, obj := range objs {
			rows = append(rows, objectRow{
				id:         obj.ID,
				name:       obj.Name,
				depth:      depth,
				components: len(obj.Components),
				position:   obj.Transform.Position,
			})
			visit(obj.Children, depth+1)
		}
	}
	visit(s.Objects, 0)
	return rows
}

// refreshRows rebuilds the list from the model and keeps keepID selected
// when it still exists.
func (a *App) refreshRows(keepID string) {
	rows := hierarchyRows(a.session.Scene())
	items := make([]list.Item, len(rows))
	index := -1
	for i, row := range rows {
		items[i] = row
		if row.id == keepID {
			index = i
		}
	}
	previous := a.hierarchy.Index()
	a.hierarchy.SetItems(items)
	switch {
	case len(items) == 0:
		return
	case index >= 0:
		a.hierarchy.Select(index)
	case previous < len(items):
		a.hierarchy.Select(max(0, previous))
	default:
		a.hierarchy.Select(len(items) - 1)
	}
}

func (a *App) selectedID() string {
	row, ok := a.hierarchy.SelectedItem().(objectRow)
	if !ok {
		return ""
	}
	return row.id
}

func (a *App) selectID(id string) bool {
	for i, item := range a.hierarchy.Items() {
		if row, ok := item.(objectRow); ok && row.id == id {
			a.hierarchy.Select(i)
			return true
		}
	}
	return false
}
