package audio

import (
	"encoding/binary"
	"math"
)

// Energy returns the root-mean-square level of a block of audio with samples
// normalised to [-1, 1]. Only linear16 is measured; empty, truncated or
// otherwise unmeasurable blocks report 0.
func Energy(block []byte, encoding EncodingInfo) float64 {
	if encoding.Format != EncodingLinear16 {
		return 0
	}
	if len(block) < 2 || len(block)%2 != 0 {
		return 0
	}

	count := len(block) / 2
	var sumSquares float64
	for i := 0; i < count; i++ {
		sample := int16(binary.LittleEndian.Uint16(block[i*2:]))
		normalised := float64(sample) / 32768.0
		sumSquares += normalised * normalised
	}

	return math.Sqrt(sumSquares / float64(count))
}

// EnergyInt16 is [Energy] for samples that are already decoded.
func EnergyInt16(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sumSquares float64
	for _, sample := range samples {
		normalised := float64(sample) / 32768.0
		sumSquares += normalised * normalised
	}

	return math.Sqrt(sumSquares / float64(len(samples)))
}
