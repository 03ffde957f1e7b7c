package queue

import (
	"encoding/hex"
	"hash/fnv"
	"strings"
)

// Fingerprint computes the deterministic 128-bit hash spec §4.B mandates
// for deduplication: lowercase/trimmed file, whitespace-collapsed prompt,
// lowercase type, serialised by sorted keys. Spec §9 leaves the exact hash
// function to the implementer ("any non-cryptographic collision-resistant
// hash is fine"); two independent FNV-1a 64-bit lanes, seeded differently
// and folded into 128 bits, avoid pulling in a hashing library the rest of
// the pack never reaches for non-cryptographic fingerprints.
func Fingerprint(file, prompt, taskType string) string {
	canon := canonicalize(file, prompt, taskType)

	h1 := fnv.New64a()
	h1.Write([]byte(canon))

	h2 := fnv.New64a()
	h2.Write([]byte(canon))
	h2.Write([]byte{0xFF}) // second lane: distinct seed suffix

	buf := make([]byte, 16)
	copy(buf[0:8], h1.Sum(nil))
	copy(buf[8:16], h2.Sum(nil))
	return hex.EncodeToString(buf)
}

// canonicalize normalises the three fields in sorted-key order
// (file, prompt, type) so the same semantic task always hashes the same way
// regardless of incidental whitespace or case differences.
func canonicalize(file, prompt, taskType string) string {
	f := strings.ToLower(strings.TrimSpace(file))
	p := collapseWhitespace(prompt)
	tp := strings.ToLower(strings.TrimSpace(taskType))
	return "file=" + f + "\x00prompt=" + p + "\x00type=" + tp
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.ToLower(strings.Join(fields, " "))
}
