// Package bootstrap prepares a CI build agent: it turns the detected platform
// into an ordered plan of host commands (brew, the xvfb init script, choco)
// and executes that plan through a tools.CommandRunner.
//
// Ownership boundary:
// - plan construction per OS
// - sequential step execution and failure policy
// - environment exports for later build steps
package bootstrap
