// Package deps indexes which components depend on which assets, in both
// directions, so that an asset change rebuilds exactly the components that
// reference it.
package deps
