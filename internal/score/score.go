// Package score computes time-decayed contest scores.
package score

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// PenaltyStep is the elapsed time after which a problem loses one more percent of its points.
	PenaltyStep = 5 * time.Minute

	hundred = 100
)

// Penalty returns the number of whole PenaltySteps between the contest start and the submission.
// Submissions timestamped before the start carry no penalty.
func Penalty(start, submitted time.Time) int64 {
	elapsed := submitted.Sub(start)
	if elapsed <= 0 {
		return 0
	}

	return int64(elapsed / PenaltyStep)
}

// Calculate returns floor(max(0, basePoints * (1 - penalty/100))).
// The percentage is applied with exact decimal arithmetic, so 300 points at a 7% penalty is 279, not 278.
func Calculate(basePoints int, start, submitted time.Time) int {
	p := Penalty(start, submitted)
	if basePoints <= 0 || p >= hundred {
		return 0
	}

	s := decimal.NewFromInt(int64(basePoints)).
		Mul(decimal.NewFromInt(hundred - p)).
		Div(decimal.NewFromInt(hundred)).
		Floor()

	return int(s.IntPart())
}
