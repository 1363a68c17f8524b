// Package store persists compilation traces: which passes ran against
// which module, in what order, and what each reported.
//
// Traces answer the questions that come up when a compiled module
// misbehaves: did the canonicalization pipeline run to completion, which
// pass last changed the module, where did a pipeline abort. The store is
// an observer of pipeline execution; the compiler never reads it.
package store
