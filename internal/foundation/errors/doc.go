// Package errors provides the classified error primitives used across pkgbuilder.
//
// Errors carry a category (toolchain, remote, network, config, ...), a severity and
// a retry strategy. Construct them with the fluent builder:
//
//	err := errors.ToolchainError("resource link failed").
//		WithContext("step", "ResourceLink").
//		WithCause(runErr).
//		Build()
//
// CLIErrorAdapter maps categories to process exit codes.
package errors
