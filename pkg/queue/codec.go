package queue

import (
	"encoding/binary"
	"hash/crc32"
)

// lengthFieldSize, crcFieldSize are the fixed-size framing fields around
// every wire record: [length u32 LE][payload][crc u32 LE].
const (
	lengthFieldSize = 4
	crcFieldSize    = 4
)

var crcIEEETable = crc32.MakeTable(crc32.IEEE)

// messageDiskSize returns the total on-disk footprint of a wire record
// carrying a payload of payloadLen bytes.
func messageDiskSize(payloadLen int) int {
	return lengthFieldSize + payloadLen + crcFieldSize
}

// calculateMessageCRC computes the CRC-32 (IEEE) checksum over the
// little-endian length field followed by the payload, matching the wire
// record's framing exactly.
func calculateMessageCRC(length uint32, payload []byte) uint32 {
	var lenBytes [lengthFieldSize]byte
	binary.LittleEndian.PutUint32(lenBytes[:], length)

	crc := crc32.Update(0, crcIEEETable, lenBytes[:])
	crc = crc32.Update(crc, crcIEEETable, payload)
	return crc
}

// verifyMessageCRC reports whether stored matches the CRC computed over
// length and payload.
func verifyMessageCRC(length uint32, payload []byte, stored uint32) bool {
	return calculateMessageCRC(length, payload) == stored
}

// encodeMessage renders a wire record for payload into dst, which must be
// at least messageDiskSize(len(payload)) bytes. Returns the number of bytes
// written.
func encodeMessage(dst []byte, payload []byte) int {
	length := uint32(len(payload))
	binary.LittleEndian.PutUint32(dst[0:lengthFieldSize], length)
	n := lengthFieldSize
	n += copy(dst[n:], payload)
	crc := calculateMessageCRC(length, payload)
	binary.LittleEndian.PutUint32(dst[n:n+crcFieldSize], crc)
	n += crcFieldSize
	return n
}
