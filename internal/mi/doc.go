// Package mi implements the wire format of GDB's Machine Interface.
//
// Outgoing commands are built as Command values and serialized with
// Encode, which produces the line
//
//	<verb> [<options>...] [-- <params>...]
//
// with any token that contains whitespace, a double quote or a backslash
// wrapped in double quotes. SplitArgs performs the inverse operation.
//
// Incoming text is split into lines by a Demux and parsed into Records:
// result records ("^done", "^error", ...), asynchronous records ("*stopped",
// "=thread-created", "+download"), stream records ("~", "@", "&") and
// anything else, which is passed through as raw console text.
//
// Records expose their payload both as typed Values and as a JSON document
// that can be queried with gjson paths.
package mi
