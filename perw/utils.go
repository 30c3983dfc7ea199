package perw

import (
	"debug/pe"
	"math"
	"strings"

	"github.com/h2non/filetype"
)

// CalculateEntropy returns the Shannon entropy of data in bits per byte.
func CalculateEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	entropy := 0.0
	length := float64(len(data))
	for _, count := range freq {
		if count > 0 {
			p := float64(count) / length
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// not exported by debug/pe
const imageScnMemShared = 0x10000000

// decodeSectionFlags returns human-readable section flags
func decodeSectionFlags(flags uint32) string {
	var out []string
	if flags&pe.IMAGE_SCN_CNT_CODE != 0 {
		out = append(out, "CODE")
	}
	if flags&pe.IMAGE_SCN_CNT_INITIALIZED_DATA != 0 {
		out = append(out, "INITIALIZED_DATA")
	}
	if flags&pe.IMAGE_SCN_CNT_UNINITIALIZED_DATA != 0 {
		out = append(out, "UNINITIALIZED_DATA")
	}
	if flags&pe.IMAGE_SCN_MEM_DISCARDABLE != 0 {
		out = append(out, "DISCARDABLE")
	}
	if flags&imageScnMemShared != 0 {
		out = append(out, "SHARED")
	}
	if flags&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		out = append(out, "EXECUTABLE")
	}
	if flags&pe.IMAGE_SCN_MEM_READ != 0 {
		out = append(out, "READABLE")
	}
	if flags&pe.IMAGE_SCN_MEM_WRITE != 0 {
		out = append(out, "WRITABLE")
	}
	if len(out) == 0 {
		return "None"
	}
	return strings.Join(out, ", ")
}

// payloadKind names the content of a section's raw bytes.
func payloadKind(data []byte) string {
	if len(data) == 0 {
		return "empty"
	}
	zero := true
	for _, b := range data {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return "zero-filled"
	}
	kind, _ := filetype.Match(data)
	if kind == filetype.Unknown {
		return "data"
	}
	return kind.MIME.Value
}

// isLikelyPacked flags images whose sections are mostly high entropy.
func isLikelyPacked(reports []SectionReport) bool {
	var (
		highEntropyCount int
		total            int
		sumEntropy       float64
	)
	for _, r := range reports {
		if r.SizeOfRawData == 0 {
			continue
		}
		total++
		sumEntropy += r.Entropy
		if r.Entropy > 7.0 {
			highEntropyCount++
		}
	}
	if total == 0 {
		return false
	}
	avgEntropy := sumEntropy / float64(total)
	percentHigh := float64(highEntropyCount) / float64(total)
	return percentHigh > 0.5 || avgEntropy > 6.8
}
