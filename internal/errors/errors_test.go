package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"

	"github.com/victornm/codejudge/internal/errors"
)

func TestConvert(t *testing.T) {
	tests := map[string]struct {
		err      error
		wantCode errors.Code
		wantHTTP int
	}{
		"unknown error becomes internal": {
			err:      stderrors.New("boom"),
			wantCode: errors.CodeInternal,
			wantHTTP: http.StatusInternalServerError,
		},
		"wrapped error keeps its code": {
			err:      fmt.Errorf("judge: %w", errors.UnsupportedLanguage("ruby")),
			wantCode: errors.CodeInvalidArgument,
			wantHTTP: http.StatusBadRequest,
		},
		"not found": {
			err:      errors.NotFound("contest not found: %s", "c1"),
			wantCode: errors.CodeNotFound,
			wantHTTP: http.StatusNotFound,
		},
		"persistence": {
			err:      errors.Persistence(stderrors.New("conn reset")),
			wantCode: errors.CodeUnavailable,
			wantHTTP: http.StatusServiceUnavailable,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			e := errors.Convert(tt.err)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantHTTP, e.HTTPStatusCode())
			assert.Equal(t, codes.Code(tt.wantCode), e.GRPCStatus().Code())
		})
	}
}

func TestSentinels(t *testing.T) {
	assert.ErrorIs(t, errors.UnsupportedLanguage("go"), errors.ErrUnsupportedLanguage)
	assert.Equal(t, `language not supported: "go"`, errors.UnsupportedLanguage("go").Message)

	cause := stderrors.New("deadlock detected")
	err := errors.Persistence(cause)
	assert.ErrorIs(t, err, errors.ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "persistence failure", err.Message)

	assert.True(t, errors.Is(fmt.Errorf("x: %w", err), errors.CodeUnavailable))
	assert.False(t, errors.Is(cause, errors.CodeUnavailable))
}
