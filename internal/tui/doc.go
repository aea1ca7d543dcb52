// Package tui is the terminal scene inspector. It lists the hierarchy of
// the open scene and turns key presses into mutations: rename, add,
// delete, transform drags, undo and save.
package tui
