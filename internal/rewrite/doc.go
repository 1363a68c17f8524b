// Package rewrite implements the optimization passes the compiler's
// pipelines compose.
//
// Every pass satisfies the pass.Pass contract: borrow the module, attempt
// a rewrite, report changed/unchanged accurately, never retain the module.
// Passes are stateless across invocations except for constructor-time
// configuration (options structs, the target capability).
//
// The rewrites here are deliberately modest - enough to carry a module
// from graph form to device-ready canonical form - and their depth is not
// part of the compiler's contract. The orchestrator consumes them only
// through the changed/unchanged signal.
package rewrite
