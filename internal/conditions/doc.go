// Package conditions fetches the current surf conditions for a spot and
// parses them into a Snapshot.
//
// Fetch distinguishes two failure classes: ErrTransport (no usable response)
// and ErrMalformed (a response arrived but none of the expected fields were
// in it, typically a captive-portal page). Individual wrong-typed or missing
// fields are not failures; they are replaced with their Unknown sentinel.
package conditions
