// Package retry classifies operation failures as transient or fatal and
// computes exponential backoff delays between attempts.
//
// The policy itself is stateless and reentrant; attempt state lives on the
// caller's stack inside Do, never on the Policy.
package retry
