// Package protocol implements the shade wire protocol: JSON-RPC style
// envelopes framed with raw binary attachments.
//
// A frame on the wire is
//
//	"SHD"                     3 magic bytes
//	json length     uint64    little-endian
//	json            bytes     UTF-8 Message
//	attachments     uint64    little-endian count
//	per attachment:
//	  length        uint64    little-endian
//	  data          bytes
//
// Attachment payloads pair with the envelope's binary_attachments
// descriptors by position. Errors that leave the stream unusable (bad
// magic, truncation, malformed JSON, oversized payloads) are protocol
// errors; see IsProtocolError. Request level failures travel as an Error
// inside a response Message.
package protocol
