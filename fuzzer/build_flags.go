//go:build !cgo_z3
// +build !cgo_z3

package fuzzer

// concolicBuild reports whether the engine was compiled with a linked SMT
// backend (`-tags cgo_z3`). Mirrors miner/revm_flag.go's compile-time
// capability flag, generalized from "which VM backend" to "is the optional
// concolic pass available" (§4.C.5 "optional pass").
const concolicBuild = false
