package course

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const escrowAccountPrefix = "escrow:"

// hashKey derives a hex encoded BLAKE2b-256 key from length-prefixed parts.
func hashKey(parts ...[]byte) string {
	var buf []byte
	lenBuf := make([]byte, binary.MaxVarintLen64)
	for _, p := range parts {
		n := binary.PutUvarint(lenBuf, uint64(len(p)))
		buf = append(buf, lenBuf[:n]...)
		buf = append(buf, p...)
	}
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func CourseKey(title string) string {
	return hashKey([]byte("course"), []byte(title))
}

func LessonKey(courseKey string, seq uint8) string {
	return hashKey([]byte("lesson"), []byte(courseKey), []byte{seq})
}

func AttendanceKey(courseKey, participant string) string {
	return hashKey([]byte("attendance"), []byte(courseKey), []byte(participant))
}

// EscrowAccount is the ledger account custodying the deposits of a course.
func EscrowAccount(courseKey string) string {
	return escrowAccountPrefix + courseKey
}

func IsEscrowAccount(account string) bool {
	return strings.HasPrefix(account, escrowAccountPrefix)
}
