package score_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/codejudge/internal/score"
)

func TestCalculate(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		base        int
		elapsed     time.Duration
		wantPenalty int64
		want        int
	}{
		"at start there is no penalty": {
			base: 500, elapsed: 0, wantPenalty: 0, want: 500,
		},
		"12 minutes after start costs 2 percent": {
			base: 500, elapsed: 12 * time.Minute, wantPenalty: 2, want: 490,
		},
		"just below a step keeps the previous penalty": {
			base: 500, elapsed: 5*time.Minute - time.Second, wantPenalty: 0, want: 500,
		},
		"exact step boundary applies the next penalty": {
			base: 500, elapsed: 5 * time.Minute, wantPenalty: 1, want: 495,
		},
		"fractional result is floored": {
			base: 333, elapsed: 10 * time.Minute, wantPenalty: 2, want: 326,
		},
		"decimal arithmetic does not lose a point": {
			base: 300, elapsed: 35 * time.Minute, wantPenalty: 7, want: 279,
		},
		"score never goes below zero": {
			base: 500, elapsed: 10 * time.Hour, wantPenalty: 120, want: 0,
		},
		"submission before start has no penalty": {
			base: 500, elapsed: -3 * time.Minute, wantPenalty: 0, want: 500,
		},
		"zero base points": {
			base: 0, elapsed: time.Minute, wantPenalty: 0, want: 0,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			submitted := start.Add(tt.elapsed)
			assert.Equal(t, tt.wantPenalty, score.Penalty(start, submitted))
			assert.Equal(t, tt.want, score.Calculate(tt.base, start, submitted))
		})
	}
}

func TestCalculate_Idempotent(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	at := start.Add(47 * time.Minute)

	first := score.Calculate(750, start, at)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, score.Calculate(750, start, at))
	}
}

func TestCalculate_Monotonic(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, base := range []int{1, 100, 250, 500, 999} {
		prev := score.Calculate(base, start, start)
		for m := 1; m <= 600; m++ {
			cur := score.Calculate(base, start, start.Add(time.Duration(m)*time.Minute))
			assert.LessOrEqual(t, cur, prev, "base=%d minute=%d", base, m)
			prev = cur
		}
	}
}
