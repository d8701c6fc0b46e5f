// Package regress keeps the regression-check table: for every failure site
// of the loader, the simplest known input that reaches it.
//
// Discovery runs feed a Registry through mutate.Recorder; the table is then
// emitted as Go source or TOML and replayed by later runs.
package regress
