//go:build cgo_z3
// +build cgo_z3

package fuzzer

// concolicBuild is true when the engine links an external SMT backend.
const concolicBuild = true
