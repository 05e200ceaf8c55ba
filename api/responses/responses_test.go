package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "world", body["data"].(map[string]any)["hello"])
	_, hasWarnings := body["warnings"]
	assert.False(t, hasWarnings, "warnings are omitted when empty")
}

func TestWriteResultCarriesWarnings(t *testing.T) {
	w := httptest.NewRecorder()
	WriteResult(w, http.StatusCreated, map[string]string{"status": "settled"}, []pkgerrors.Warning{
		pkgerrors.NewWarning(pkgerrors.CodeMirrorProjectionFailed, "expense mirror could not be written"),
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Data     map[string]string `json:"data"`
		Warnings []struct {
			Code      string `json:"code"`
			Retryable bool   `json:"retryable"`
		} `json:"warnings"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "settled", body.Data["status"])
	require.Len(t, body.Warnings, 1)
	assert.Equal(t, string(pkgerrors.CodeMirrorProjectionFailed), body.Warnings[0].Code)
	assert.True(t, body.Warnings[0].Retryable)
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeAlreadySettled, "settlement already paid out").
		WithDetails(map[string]any{"settlement_id": "abc"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusConflict, w.Code)
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeAlreadySettled), body.Error.Code)
	assert.Equal(t, "settlement already paid out", body.Error.Message)
	assert.NotNil(t, body.Error.Details)
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Nil(t, body.Error.Details)
}

func TestWriteErrorHidesInternalMessagesAndSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp 10.0.0.4:5432"), "load settlement").
		WithDetails(map[string]any{"dependency": "postgres"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "dependency unavailable", body.Error.Message)
	assert.True(t, body.Error.Retryable)
	assert.NotContains(t, w.Body.String(), "10.0.0.4")
}

func TestWriteErrorDropsDetailsForVoidedSales(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeAlreadyVoided, "sale was voided").WithDetails(map[string]any{"voided_by": "x"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "sale was voided", body.Error.Message)
	assert.Nil(t, body.Error.Details)
	assert.False(t, body.Error.Retryable)
}

func TestWriteSuccessFallsBackWhenPayloadCannotEncode(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]any{"bad": make(chan int)})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
}
