package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dhamana/core"
	"github.com/trezcool/dhamana/core/course"
	"github.com/trezcool/dhamana/tests"
)

func TestAppHTTPErrorHandler(t *testing.T) {
	_, translator := testutil.NewValidator()

	tests := []struct {
		name     string
		err      error
		debug    bool
		wantCode int
		wantData []byte
		wantLog  bool
		shutdown bool
	}{
		{
			name:     "kind: funds",
			err:      errors.Wrap(course.ErrInsufficientBalance, "withdrawing deposit"),
			wantCode: http.StatusPaymentRequired,
			wantData: []byte(`{"error": "insufficient balance", "kind": "funds"}`),
		},
		{
			name:     "kind: timing",
			err:      course.ErrLate,
			wantCode: http.StatusConflict,
			wantData: []byte(`{"error": "late", "kind": "timing"}`),
		},
		{
			name:     "validation error with fields",
			err:      core.NewFieldError("amount", "too low"),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"amount": "too low"}`),
		},
		{
			name:     "validation error",
			err:      errors.Wrap(core.NewValidationError(errors.New("bad input")), "binding"),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error": "bad input"}`),
		},
		{
			name:     "http error",
			err:      echo.ErrNotFound,
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"error": "Not Found"}`),
		},
		{
			name:     "unauthenticated",
			err:      errUnauthorized,
			wantCode: http.StatusUnauthorized,
			wantData: []byte(`{"error": "caller not authenticated"}`),
		},
		{
			name:     "server error",
			err:      errors.New("db down"),
			wantCode: http.StatusInternalServerError,
			wantData: []byte(`{"error": "Internal Server Error"}`),
			wantLog:  true,
		},
		{
			name:     "server error in debug mode",
			err:      errors.New("db down"),
			debug:    true,
			wantCode: http.StatusInternalServerError,
			wantData: []byte(`{"error": "db down"}`),
			wantLog:  true,
		},
		{
			name:     "shutdown",
			err:      errors.Wrap(core.NewIntegrityError("withdraw", "escrow record below deposit"), "withdrawing deposit"),
			wantCode: http.StatusInternalServerError,
			wantData: []byte(`{"error": "Internal Server Error"}`),
			wantLog:  true,
			shutdown: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &testutil.Logger{}
			shutdownSignaled := false
			handler := newAppHTTPErrorHandler(logger, translator, func() { shutdownSignaled = true })

			e := echo.New()
			e.Debug = tt.debug
			rec := httptest.NewRecorder()
			ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			handler(tt.err, ctx)

			assert.Equal(t, tt.wantCode, rec.Code)
			ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
			require.NoError(t, err)
			assert.True(t, ok, "data = %v; wantData %v", rec.Body.String(), string(tt.wantData))

			if tt.wantLog {
				entries := logger.Entries()
				require.Len(t, entries, 1)
				assert.Equal(t, "error", entries[0].Level)
			} else {
				assert.Empty(t, logger.Entries())
			}
			assert.Equal(t, tt.shutdown, shutdownSignaled)
		})
	}
}

func TestAppHTTPErrorHandler_head(t *testing.T) {
	_, translator := testutil.NewValidator()
	handler := newAppHTTPErrorHandler(&testutil.Logger{}, translator, func() {})

	rec := httptest.NewRecorder()
	ctx := echo.New().NewContext(httptest.NewRequest(http.MethodHead, "/", nil), rec)
	handler(course.ErrCourseNotFound, ctx)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestKindStatus(t *testing.T) {
	for _, kind := range []course.Kind{
		course.KindAuthorization, course.KindDuplicate, course.KindSequence, course.KindCapacity,
		course.KindFunds, course.KindState, course.KindTiming, course.KindNotFound,
	} {
		assert.NotZero(t, kindStatus[kind], kind.String())
	}
}
