package domain

import "time"

// EvaluationObserver receives one sample per filter evaluation.
type EvaluationObserver interface {
	ObserveEvaluation(scope string, scanned, matched int, elapsed time.Duration)
}

// NopObserver discards samples.
type NopObserver struct{}

func (NopObserver) ObserveEvaluation(string, int, int, time.Duration) {}
