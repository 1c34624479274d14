// Package sink is a small artifact receiving server. It accepts the same
// multipart upload the uploader sends, so a pipeline can be exercised end to
// end without the production endpoint.
//
// Ownership boundary:
// - HTTP routes and basic-auth gate
// - artifact storage on local disk
package sink
