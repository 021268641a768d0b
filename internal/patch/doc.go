// Package patch implements in-place binary patches on loaded firmware images.
//
// Three device-specific patch algorithms are provided:
//
//   - Vector-table checksum repair: certain microcontroller boot ROMs verify
//     an integrity word over the first eight vector-table words before
//     starting the application. RepairVectorChecksum recomputes that word
//     in place; the slot position depends on the device family.
//
//   - CRP injection: NXP-style code read protection is selected by a magic
//     word at offset 0x2FC. InjectCRP overwrites the placeholder with the
//     magic for the requested level; the image must already carry one of the
//     known placeholders, otherwise it was not built for CRP.
//
//   - Serialization: a per-unit serial number is stamped into the image,
//     either at a fixed address (optionally relative to a named ELF section)
//     or wherever a byte pattern matches. The serial can be rendered as
//     little-endian binary, zero-padded ASCII decimal, or UTF-16-style
//     digit/zero byte pairs.
//
// All patches write through spans returned by the image package, so they can
// never cross a section boundary.
package patch
