// Package storage reads and writes project files by slash-separated key,
// either under a directory on disk or in memory.
package storage
