// Package crc implements the reflected CRC-32 (polynomial 0xEDB88320) used to
// protect the persistent configuration region.
// Table is 16 entries, each byte is consumed as two nibble lookups.
// Small table fits in flash-constrained targets and gives the same result as
// the byte-wise IEEE variant.
package crc

const CRC32_POLY uint32 = 0xedb88320

var crc32Nibble = [16]uint32{
	0x00000000, 0x1db71064, 0x3b6e20c8, 0x26d930ac,
	0x76dc4190, 0x6b6b51f4, 0x4db26158, 0x5005713c,
	0xedb88320, 0xf00f9344, 0xd6d6a3e8, 0xcb61b38c,
	0x9b64c2b0, 0x86d3d2d4, 0xa00ae278, 0xbdbdf21c,
}

// CRC32_next feeds one byte into running (not inverted) register value.
func CRC32_next(crc uint32, b byte) uint32 {
	crc = crc32Nibble[(crc^uint32(b))&0x0f] ^ (crc >> 4)
	crc = crc32Nibble[(crc^uint32(b>>4))&0x0f] ^ (crc >> 4)
	return crc
}

// CRC32_update continues checksum previously returned by CRC32 or CRC32_update.
func CRC32_update(sum uint32, data []byte) uint32 {
	crc := ^sum
	for _, b := range data {
		crc = CRC32_next(crc, b)
	}
	return ^crc
}

func CRC32(data []byte) uint32 { return CRC32_update(0, data) }

// CRC32_reference is bitwise implementation, used to verify the table.
func CRC32_reference(data []byte) uint32 {
	crc := ^uint32(0)
	for _, b := range data {
		crc ^= uint32(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ CRC32_POLY
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}
