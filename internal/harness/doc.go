// Package harness discovers test cases and runs them: oracle load, clean
// load, diff, then either corruption sweeps (discovery) or the replay of
// known regression checks.
//
// Cases run sequentially in name order; parallelism lives inside the
// sweeps of internal/mutate. The harness reaches the library under test
// only through scene.Loader.
package harness
