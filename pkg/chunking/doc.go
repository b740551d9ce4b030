// Package chunking splits a message into ordered fragments and replays them as a
// paced event stream.
//
// A plan is a lossless partition of the message: concatenating its fragments in
// order yields the message exactly. Two planners are provided:
//
//	Plan          - a fixed number of fragments whose lengths differ by at most
//	                one, with the longer fragments first
//	FixedSizePlan - consecutive fragments of a fixed rune length
//
// Lengths are counted in runes so a fragment never splits a multi-byte
// character. A Streamer emits one Delta event per fragment followed by a single
// Done event, pausing between emissions without blocking other streams.
package chunking
