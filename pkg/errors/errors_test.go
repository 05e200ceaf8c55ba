package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataTable(t *testing.T) {
	cases := map[Code]struct {
		status    int
		retryable bool
		details   bool
		expose    bool
	}{
		CodeValidation:             {status: http.StatusBadRequest, details: true, expose: true},
		CodeNotFound:               {status: http.StatusNotFound, expose: true},
		CodeConflict:               {status: http.StatusConflict, expose: true},
		CodeStateConflict:          {status: http.StatusUnprocessableEntity, details: true, expose: true},
		CodeIdempotency:            {status: http.StatusConflict, details: true, expose: true},
		CodeInternal:               {status: http.StatusInternalServerError, retryable: true},
		CodeDependency:             {status: http.StatusServiceUnavailable, retryable: true, details: true},
		CodeAlreadySettled:         {status: http.StatusConflict, details: true, expose: true},
		CodeAlreadyVoided:          {status: http.StatusConflict, expose: true},
		CodeInconsistent:           {status: http.StatusInternalServerError, details: true},
		CodeMirrorProjectionFailed: {status: http.StatusServiceUnavailable, retryable: true, details: true},
	}

	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			meta := MetadataFor(code)
			assert.Equal(t, want.status, meta.HTTPStatus)
			assert.Equal(t, want.retryable, meta.Retryable)
			assert.Equal(t, want.details, meta.DetailsAllowed)
			assert.Equal(t, want.expose, meta.ExposeMessage)
			assert.NotEmpty(t, meta.PublicMessage)
		})
	}
}

func TestWarningCodesRenderAsOK(t *testing.T) {
	for _, code := range []Code{CodePayoutDivergence, CodeSettledPayoutRemains, CodeOverpaid, CodeAmbiguousRetraction} {
		assert.Equal(t, http.StatusOK, MetadataFor(code).HTTPStatus, code)
	}
}

func TestUnknownCodeFallsBackToInternal(t *testing.T) {
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestRetryAfterOnlyForTransientCodes(t *testing.T) {
	assert.Equal(t, 2*time.Second, MetadataFor(CodeDependency).RetryAfter)
	assert.Equal(t, 30*time.Second, MetadataFor(CodeMirrorProjectionFailed).RetryAfter)
	assert.Zero(t, MetadataFor(CodeInternal).RetryAfter)
}

func TestWrapKeepsCauseOutOfMessage(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "load position")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "DEPENDENCY_ERROR: load position", err.Error())
	assert.Equal(t, "load position", err.Message())

	noCause := Wrap(CodeConflict, nil, "sku taken")
	assert.NoError(t, noCause.Unwrap())
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := Errorf(CodeValidation, "invalid provenance %q", "stolen")
	assert.Equal(t, `invalid provenance "stolen"`, err.Message())
	assert.Nil(t, err.Details())

	err.WithDetails(map[string]any{"field": "provenance"})
	assert.Equal(t, map[string]any{"field": "provenance"}, err.Details())
}

func TestAsFindsOutermostTypedError(t *testing.T) {
	inner := New(CodeNotFound, "product missing")
	outer := Wrap(CodeStateConflict, inner, "cannot reclassify")
	chained := fmt.Errorf("controller: %w", outer)

	got := As(chained)
	require.NotNil(t, got)
	assert.Equal(t, CodeStateConflict, got.Code())
	assert.True(t, IsCode(chained, CodeStateConflict))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeStateConflict))
	assert.Nil(t, As(nil))
}

func TestNilErrorIsSafe(t *testing.T) {
	var err *Error
	assert.Equal(t, CodeInternal, err.Code())
	assert.Empty(t, err.Message())
	assert.Empty(t, err.Error())
	assert.Nil(t, err.WithDetails("x"))
}

func TestNewWarningCopiesRetryable(t *testing.T) {
	assert.True(t, NewWarning(CodeMirrorProjectionFailed, "expense not written").Retryable)
	assert.False(t, NewWarning(CodePayoutDivergence, "diverges").Retryable)
}
