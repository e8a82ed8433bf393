package imaging

import (
	"fmt"

	"github.com/corona10/goimagehash"
)

// PerceptualHash calculates the perceptual hash of an encoded image
func PerceptualHash(data []byte) (*goimagehash.ImageHash, error) {
	p, err := Decode(data)
	if err != nil {
		return nil, err
	}

	hash, err := goimagehash.PerceptionHash(p.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate perceptual hash: %w", err)
	}
	return hash, nil
}

// PerceptualDistance returns the Hamming distance (0-64) between the perceptual
// hashes of two encoded images. Lossless compression yields 0.
func PerceptualDistance(a, b []byte) (int, error) {
	ha, err := PerceptualHash(a)
	if err != nil {
		return 0, err
	}
	hb, err := PerceptualHash(b)
	if err != nil {
		return 0, err
	}
	return ha.Distance(hb)
}
