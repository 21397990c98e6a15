// Package build is the entry point for running package builds.
//
// Service accepts one build at a time and runs it on a worker goroutine. Progress
// travels to the caller as a stream of Events over a channel that a single
// dispatcher drains into the caller's Callback, so OnLog calls arrive in order
// and exactly one of OnSuccess or OnFailure follows them.
//
// A Builder performs the actual work. LocalBuilder drives the toolchain
// pipeline; RemoteBuilder delegates to a CI workflow.
package build
