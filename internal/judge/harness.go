package judge

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/toolchain"
)

// DefaultWarmUp is the number of cases always evaluated before a failure stops the harness.
const DefaultWarmUp = 3

// Executor runs a built program once.
type Executor interface {
	Run(ctx context.Context, stdin string) (string, error)
}

// Harness evaluates a program against test cases in their declared order.
type Harness struct {
	// WarmUp is the number of leading cases evaluated even when some fail.
	// After that the first failing case stops the evaluation.
	WarmUp int
}

// Evaluate runs every case sequentially. A runtime error ends the evaluation and decides the verdict.
// An error is returned only when the program could not be run at all, or ctx is done.
func (h Harness) Evaluate(ctx context.Context, e Executor, cases []domain.TestCase) (*domain.JudgeResult, error) {
	warmUp := h.WarmUp
	if warmUp <= 0 {
		warmUp = DefaultWarmUp
	}

	res := &domain.JudgeResult{
		TotalCases: len(cases),
		Details:    make([]domain.TestResult, 0, len(cases)),
	}

	for i, tc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		expected := strings.TrimSpace(tc.ExpectedOutput)
		out, err := e.Run(ctx, tc.Input)
		if err != nil {
			var re *toolchain.RuntimeError
			if !stderrors.As(err, &re) {
				return nil, fmt.Errorf("test case %d: %w", i+1, err)
			}

			res.Details = append(res.Details, domain.TestResult{
				Index:          i + 1,
				Input:          tc.Input,
				ExpectedOutput: expected,
				ErrorMessage:   re.Message(),
			})
			res.Verdict = domain.VerdictRuntimeError
			res.ErrorMessage = re.Message()
			return res, nil
		}

		out = strings.TrimSpace(out)
		passed := out == expected
		if passed {
			res.PassedCases++
		}

		res.Details = append(res.Details, domain.TestResult{
			Index:          i + 1,
			Passed:         passed,
			Input:          tc.Input,
			ExpectedOutput: expected,
			Output:         out,
		})

		if !passed && i >= warmUp-1 {
			break
		}
	}

	res.Verdict = domain.VerdictWrongAnswer
	if res.PassedCases == res.TotalCases {
		res.Verdict = domain.VerdictAccepted
	}

	return res, nil
}
