package vad

// Result is the classification of a single frame.
type Result struct {
	// Speech reports whether the frame was classified as speech.
	Speech bool

	// Probability is the speech probability score (0.0–1.0). Backends that
	// produce hard decisions report 0 or 1.
	Probability float64
}
