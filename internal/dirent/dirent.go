// Package dirent encodes directory entries in the Linux ABI
// linux_dirent64 layout bvisor's synthesized /proc directories return
// from their Getdents64 method (spec.md §6):
//
//	d_ino (u64 LE) | d_off (i64 LE) | d_reclen (u16 LE) | d_type (u8) | name\0
//
// with d_reclen rounded up to the next multiple of 8.
package dirent

import "encoding/binary"

// ByteOrder is the wire byte order for every field (spec.md §6:
// "little-endian").
var ByteOrder = binary.LittleEndian

// ReclenOffset is the byte offset of the d_reclen field within a
// record: 8 (d_ino) + 8 (d_off) = 16.
const ReclenOffset = 16

// fixedHeaderLen is d_ino + d_off + d_reclen + d_type, before the
// NUL-terminated name.
const fixedHeaderLen = 8 + 8 + 2 + 1

// Entry is one directory entry to encode.
type Entry struct {
	Ino  uint64
	Type uint8 // DT_* constant, e.g. unix.DT_DIR / unix.DT_REG
	Name string
}

// reclen returns the 8-byte-aligned record length for an entry whose
// name is nameLen bytes.
func reclen(nameLen int) int {
	n := fixedHeaderLen + nameLen + 1 // +1 for the NUL terminator
	return (n + 7) &^ 7
}

// Encode encodes linux_dirent64 records for entries into a new buffer,
// assigning sequential d_off values starting at startOff (the
// directory's previous cursor position), and returns the encoded
// bytes.
func Encode(entries []Entry, startOff int64) []byte {
	var buf []byte

	off := startOff

	for _, e := range entries {
		rl := reclen(len(e.Name))
		off += int64(rl)

		rec := make([]byte, rl)
		ByteOrder.PutUint64(rec[0:8], e.Ino)
		ByteOrder.PutUint64(rec[8:16], uint64(off))
		ByteOrder.PutUint16(rec[16:18], uint16(rl))
		rec[18] = e.Type
		copy(rec[19:], e.Name)
		// rec[19+len(e.Name)] is already 0 (NUL terminator) and any
		// trailing padding bytes are left zeroed.

		buf = append(buf, rec...)
	}

	return buf
}
