package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatJSON_BasicError(t *testing.T) {
	err := New(ErrCodeBadInput, "query cannot be empty", nil).
		WithDetail("field", "query")

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeBadInput, result["code"])
	assert.Equal(t, "query cannot be empty", result["message"])
	assert.Equal(t, string(CategoryValidation), result["category"])
	assert.Equal(t, string(KindBadInput), result["kind"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "query", details["field"])
}

func TestFormatJSON_StandardError(t *testing.T) {
	err := errors.New("generic error")

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeInternal, result["code"])
	assert.Equal(t, "generic error", result["message"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)

	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}

func TestFormatJSON_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeInternal, "operation failed", cause)

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "underlying error", result["cause"])
}

func TestFormatJSON_RetryableFlag(t *testing.T) {
	err := New(ErrCodeRateLimited, "rate limited", nil)

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, true, result["retryable"])
}

func TestFormatForLog_BasicError(t *testing.T) {
	err := New(ErrCodeTimeout, "batch timed out", nil).
		WithDetail("batch_id", "b-1")

	result := FormatForLog(err)

	assert.Equal(t, ErrCodeTimeout, result["error_code"])
	assert.Equal(t, string(KindTimeout), result["error_kind"])
	assert.Equal(t, "batch timed out", result["message"])
	assert.Equal(t, "b-1", result["detail_batch_id"])
}

func TestFormatForLog_StandardError(t *testing.T) {
	err := errors.New("generic error")

	result := FormatForLog(err)

	assert.Equal(t, "generic error", result["error"])
}

func TestFormatForLog_NilError(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}

func TestFormatForLog_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeInternal, "operation failed", cause)

	result := FormatForLog(err)

	assert.Equal(t, "underlying error", result["cause"])
}
