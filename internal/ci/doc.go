// Package ci identifies the CI provider and build OS from environment
// variables exported by the CI service.
//
// Ownership boundary:
// - provider and OS detection
// - build metadata used to label uploads and metrics
package ci
