// Package logbook is a leveled diagnostic channel for non-fatal problems
// such as dependency bookkeeping mismatches and failed asset loads.
package logbook
