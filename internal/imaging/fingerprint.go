package imaging

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// DefaultMaxDistance is the largest Hamming distance between two
// fingerprints that still counts as a near-duplicate.
const DefaultMaxDistance = 5

// ComputeFingerprint returns the 64-bit difference hash of img.
func ComputeFingerprint(img image.Image) (Fingerprint, error) {
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return nil, fmt.Errorf("difference hash: %w", err)
	}
	return fingerprintOf(h.GetHash()), nil
}

func fingerprintOf(hash uint64) Fingerprint {
	fp := make(Fingerprint, 8)
	binary.BigEndian.PutUint64(fp, hash)
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b Fingerprint) (int, error) {
	if len(a) != 8 || len(b) != 8 {
		return 0, fmt.Errorf("fingerprint length %d/%d, want 8", len(a), len(b))
	}
	ha := goimagehash.NewImageHash(binary.BigEndian.Uint64(a), goimagehash.DHash)
	hb := goimagehash.NewImageHash(binary.BigEndian.Uint64(b), goimagehash.DHash)
	return ha.Distance(hb)
}
