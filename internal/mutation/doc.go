// Package mutation is the transactional unit of change for an open scene.
//
// Every mutation validates its preconditions, then writes the scene model,
// then the runtime instance graph, then the source document, in that order.
// A failed mutation never reaches the document write. Continuous mutations
// (drags) update the model and runtime on every input tick and write the
// document exactly once when committed.
//
// All of this runs on one editor goroutine. The only asynchronous work is
// runtime component construction waiting on asset loads; its results are
// wired back in by Context.Settle on the editor goroutine.
package mutation
