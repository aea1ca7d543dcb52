// Package docpath addresses values inside tree-shaped documents. A Path is a
// list of key and index steps; a Selector is a typed, composable projection
// that resolves to a Path without touching any document.
package docpath
