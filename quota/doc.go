// Package quota provides the admission gate that protects a shared,
// quota-constrained remote service.
//
// The Gate tracks (timestamp, units) entries for calls admitted within a
// rolling window and admits a new call only while both the unit total and the
// call count stay under budget. Callers that do not fit wait until the oldest
// entry leaves the window (plus a safety margin) and then check again. The
// internal lock is held only for the scan-and-decide step, never while
// waiting. State lives in memory and resets when the process restarts.
package quota
