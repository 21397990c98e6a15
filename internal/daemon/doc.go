// Package daemon keeps a build service alive: it triggers builds on a fixed
// interval and on source changes, and serves health and metrics endpoints.
package daemon
