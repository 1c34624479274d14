// Package upload publishes build artifacts to an HTTP endpoint as a single
// multipart form POST authenticated with HTTP basic auth.
//
// Two transports share the same form layout: the native HTTP client and the
// external curl binary. Each artifact becomes one form part whose field name
// and file name are the artifact's base name.
package upload
