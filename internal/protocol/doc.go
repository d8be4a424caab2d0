// Package protocol implements the lottery wire codec: typed batches of
// comma-joined text payloads.
//
// A message is laid out as
//
//	[1 byte kind] ([4 bytes big-endian length] [payload bytes])*
//
// and every payload in a message has the message's kind. Payload fields are
// joined with commas in a fixed order and are never escaped, so a field that
// contains a comma cannot be encoded; Encode refuses it instead of producing
// bytes the peer would split differently.
//
// The codec is a pure transform. Framing a message on a byte stream is the
// job of package transport.
package protocol
