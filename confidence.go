package stackradar

// Confidence is a coarse estimate of how certain a detection is
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceFromMatches derives the confidence from the number of distinct
// patterns that matched. The thresholds are absolute and are not normalized
// by the number of patterns a technology has.
func ConfidenceFromMatches(matches int) Confidence {
	switch {
	case matches >= 3:
		return ConfidenceHigh
	case matches == 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Rank orders confidence levels, higher is more certain. Unknown values rank 0.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}
