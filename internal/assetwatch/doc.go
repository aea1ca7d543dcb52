// Package assetwatch turns filesystem changes under the project's asset
// roots into asset events. Changes are coalesced over a debounce window and
// reported with asset ids relative to the project directory, the same keys
// components use to reference assets.
package assetwatch
