package wire

// COBS (Consistent Overhead Byte Stuffing) framing. A complete frame on the
// wire is a COBS-encoded payload terminated by a single 0x00 delimiter; the
// encoding guarantees the delimiter never occurs inside the encoded bytes.
//
// Grounded on usb_transport.rs's use of postcard::to_slice_cobs /
// from_bytes_cobs: the Rust side leans on the postcard crate's COBS
// implementation, which this package reimplements directly since no COBS
// package appears anywhere in the retrieved Go corpus.

// CobsEncode writes the COBS encoding of src into dst (which must be at
// least CobsMaxEncodedLen(len(src)) bytes) followed by a single 0x00
// delimiter, and returns the total number of bytes written including the
// delimiter.
func CobsEncode(src []byte, dst []byte) int {
	if len(src) == 0 {
		dst[0] = 0x00
		return 1
	}

	writeIdx := 0
	codeIdx := 0
	dst[codeIdx] = 0x01 // placeholder, patched below
	writeIdx++
	code := byte(1)

	for _, b := range src {
		if b == 0x00 {
			dst[codeIdx] = code
			codeIdx = writeIdx
			dst[codeIdx] = 0x01
			writeIdx++
			code = 1
			continue
		}
		dst[writeIdx] = b
		writeIdx++
		code++
		if code == 0xFF {
			dst[codeIdx] = code
			codeIdx = writeIdx
			dst[codeIdx] = 0x01
			writeIdx++
			code = 1
		}
	}
	dst[codeIdx] = code
	dst[writeIdx] = 0x00
	writeIdx++
	return writeIdx
}

// CobsMaxEncodedLen returns the worst-case number of bytes CobsEncode writes
// for a payload of n bytes, including the trailing delimiter: the data, one
// leading code byte, one more code byte per 254 data bytes, and the
// delimiter.
func CobsMaxEncodedLen(n int) int {
	return n + n/254 + 2
}

// CobsDecode decodes a COBS frame (without its trailing delimiter) from src
// into dst, returning the number of decoded bytes. dst may alias src.
func CobsDecode(src []byte, dst []byte) (int, error) {
	readIdx := 0
	writeIdx := 0
	for readIdx < len(src) {
		code := src[readIdx]
		if code == 0 {
			return 0, ErrTruncated
		}
		readIdx++
		blockLen := int(code) - 1
		if readIdx+blockLen > len(src) {
			return 0, ErrTruncated
		}
		copy(dst[writeIdx:], src[readIdx:readIdx+blockLen])
		writeIdx += blockLen
		readIdx += blockLen
		if code != 0xFF && readIdx < len(src) {
			dst[writeIdx] = 0x00
			writeIdx++
		}
	}
	return writeIdx, nil
}
