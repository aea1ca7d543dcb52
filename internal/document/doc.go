// Package document is the patch engine for scene and project files. It
// keeps the parsed yaml.v3 node tree, so writing a value at a docpath.Path
// leaves unrelated text, comments and styles as they were.
package document
