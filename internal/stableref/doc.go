// Package stableref encodes live text offsets as stable position references.
//
// A reference is minted against a replicated text container at some point in
// its history and stays resolvable afterwards: concurrent inserts and deletes,
// local or remote, move the resolved offset along with the character the
// reference was anchored to. If that character is deleted the reference
// resolves to the nearest surviving boundary.
//
// References are opaque byte strings. They are only meaningful to a peer that
// knows the operation that created the anchored character; resolving a
// reference whose anchor is unknown yields ErrStaleReference rather than a
// guessed offset.
//
//	ref, err := stableref.Encode(text, 4)
//	...
//	offset, err := stableref.Decode(text, ref) // follows later edits
package stableref
