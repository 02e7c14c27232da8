// Package retry re-invokes fallible operations with exponential backoff and a
// bounded attempt count. It does not classify errors: a malformed request is
// retried exactly like a timeout.
package retry
