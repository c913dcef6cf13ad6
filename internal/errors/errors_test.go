package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/flashgame/internal/errors"
)

func TestConvert(t *testing.T) {
	tests := map[string]struct {
		err        error
		wantCode   errors.Code
		wantStatus int
	}{
		"plain error becomes internal": {
			err:        stderrors.New("boom"),
			wantCode:   errors.CodeInternal,
			wantStatus: http.StatusInternalServerError,
		},
		"wrapped coded error keeps its code": {
			err:        fmt.Errorf("join: %w", errors.SessionNotJoinable("g1")),
			wantCode:   errors.CodeFailedPrecondition,
			wantStatus: http.StatusConflict,
		},
		"store unavailable maps to 503": {
			err:        errors.StoreUnavailable(stderrors.New("dial tcp")),
			wantCode:   errors.CodeUnavailable,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			e := errors.Convert(tt.err)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantStatus, e.HTTPStatusCode())
		})
	}
}

func TestHasReason(t *testing.T) {
	err := fmt.Errorf("create: %w", errors.InvalidTimeLimit(10, 20))

	require.True(t, errors.HasReason(err, errors.ReasonInvalidTimeLimit))
	require.False(t, errors.HasReason(err, errors.ReasonStoreUnavailable))
	require.True(t, errors.HasCode(err, errors.CodeInvalidArgument))
	require.False(t, errors.Convert(err).Retryable())
	require.True(t, errors.StoreUnavailable(nil).Retryable())
}
