// Package bytecode defines the compiled form of function and script
// bodies: the instruction set, the Unit that carries an instruction
// stream together with its constant and name pools, and the side tables
// consulted on exceptional control flow and for diagnostics.
//
// # Encoding
//
// An instruction is one opcode byte followed by a fixed number of operand
// bytes determined only by the opcode:
//
//   - slot, constant and name indices are one byte, or two bytes
//     (big-endian) when the instruction is prefixed by WIDE
//   - counts and selectors are one byte and never widened
//   - jump targets are absolute two-byte instruction pointers
//   - LOAD_FAR_CST takes a four-byte constant index
//
// WIDE in front of an opcode with no widenable operand is malformed code;
// Decode reports ErrWideUnsupported. Decode and Instruction.AppendTo are
// exact inverses.
//
// # Side tables
//
// A Unit carries unwind entries (loop, try/catch and unwind_protect
// regions), location entries and argument-name entries, all keyed by
// instruction ranges and searched by binary search. They are only read
// when something goes wrong or when a builtin asks, never on the normal
// path.
//
// # Slots
//
// Slots are numbered outputs first, then inputs, then locals, and the
// first NumSlots entries of Names are their names. Slots declared
// persistent are listed in PersistentSlots.
//
// Units are immutable once built and can be serialized with MarshalUnit
// (canonical CBOR) for caching.
package bytecode
