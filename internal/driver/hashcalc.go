package driver

import (
	"crypto/sha256"

	"github.com/vmihailenco/msgpack/v5"

	"cfgprep/internal/config"
)

// Digest is a SHA-256 sum.
type Digest [sha256.Size]byte

// combineDigest: H(len(p1) || p1 || len(p2) || p2 ...).
func combineDigest(parts ...[]byte) Digest {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		_, _ = h.Write(n[:])
		_, _ = h.Write(p)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// ResultKey identifies the pipeline result of one input: the raw file
// bytes, the graph name and every pipeline setting that changes the output.
func ResultKey(input []byte, name string, p config.Pipeline) (Digest, error) {
	fingerprint, err := msgpack.Marshal(&p)
	if err != nil {
		return Digest{}, err
	}
	content := sha256.Sum256(input)
	return combineDigest(content[:], []byte(name), fingerprint), nil
}
