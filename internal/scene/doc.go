// Package scene holds the editable scene model: objects, their transforms
// and components, the scene that indexes them by id, and the project that
// lists scenes. The model mirrors the shape of the scene document so that
// docpath selectors declared here address both.
package scene
