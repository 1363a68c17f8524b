// Package ir defines the graph-based intermediate representation the
// compiler operates on.
//
// A Module is one compilation unit: a set of computations, each an ordered
// list of instructions forming a data-flow graph, plus the module's
// configuration and target descriptor. Modules are mutable; optimization
// passes rewrite them in place. A module has exactly one mutator at a time
// by construction - pipeline execution is strictly sequential - so no
// locking exists at this layer.
//
// The package also provides:
//   - a textual format (Parse / Print) used for debug dumps, operator
//     overrides, and test fixtures
//   - structural verification (Verify) used by the invariant-checker pass
//   - a canonical fingerprint (Fingerprint) used for structural-identity
//     checks and trace-store keys
package ir
