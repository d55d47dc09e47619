package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	pe := New(ErrCodeInternal, "internal failure", originalErr)

	require.NotNil(t, pe)
	assert.Equal(t, originalErr, errors.Unwrap(pe))
	assert.True(t, errors.Is(pe, originalErr))
}

func TestPipelineError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "rate limited",
			code:     ErrCodeRateLimited,
			message:  "provider rejected request",
			expected: "[ERR_101_RATE_LIMITED] provider rejected request",
		},
		{
			name:     "dimension mismatch",
			code:     ErrCodeDimensionMismatch,
			message:  "expected 768 got 256",
			expected: "[ERR_201_DIMENSION_MISMATCH] expected 768 got 256",
		},
		{
			name:     "disk write",
			code:     ErrCodeDiskWrite,
			message:  "write failed",
			expected: "[ERR_302_DISK_WRITE] write failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestPipelineError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeTimeout, "batch A timed out", nil)
	err2 := New(ErrCodeTimeout, "batch B timed out", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestPipelineError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeTimeout, "timed out", nil)
	err2 := New(ErrCodeRateLimited, "rate limited", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestPipelineError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeBadInput, "bad chunk", nil)

	err = err.WithDetail("chunk_id", "abc123")
	err = err.WithDetail("provider_id", "local-1")

	assert.Equal(t, "abc123", err.Details["chunk_id"])
	assert.Equal(t, "local-1", err.Details["provider_id"])
}

func TestPipelineError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeRateLimited, CategoryProvider},
		{ErrCodeProviderUnavailable, CategoryProvider},
		{ErrCodeTimeout, CategoryProvider},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeBadInput, CategoryValidation},
		{ErrCodePayloadTooLarge, CategoryValidation},
		{ErrCodeSchemaMismatch, CategoryStore},
		{ErrCodeDiskWrite, CategoryStore},
		{ErrCodeCorruptIndex, CategoryStore},
		{ErrCodeParseError, CategoryAnalysis},
		{ErrCodeAnalysisError, CategoryAnalysis},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeCancelled, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestPipelineError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeSchemaMismatch, SeverityFatal},
		{ErrCodeCorruptIndex, SeverityFatal},
		{ErrCodeDimensionMismatch, SeverityFatal},
		{ErrCodeParseError, SeverityWarning},
		{ErrCodeAnalysisError, SeverityWarning},
		{ErrCodeRateLimited, SeverityError},
		{ErrCodeTimeout, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestPipelineError_KindFromCode(t *testing.T) {
	tests := []struct {
		code     string
		wantKind Kind
	}{
		{ErrCodeRateLimited, KindRateLimited},
		{ErrCodeProviderUnavailable, KindProviderUnavailable},
		{ErrCodeDimensionMismatch, KindModelMismatch},
		{ErrCodeTimeout, KindTimeout},
		{ErrCodeBadInput, KindBadInput},
		{ErrCodePayloadTooLarge, KindBadInput},
		{ErrCodeCancelled, KindCancelled},
		{ErrCodeInternal, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantKind, err.Kind)
		})
	}
}

func TestPipelineError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeRateLimited, true},
		{ErrCodeTimeout, true},
		{ErrCodeProviderUnavailable, false},
		{ErrCodeBadInput, false},
		{ErrCodeCorruptIndex, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesPipelineErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	pe := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, pe)
	assert.Equal(t, ErrCodeInternal, pe.Code)
	assert.Equal(t, "something went wrong", pe.Message)
	assert.Equal(t, originalErr, pe.Cause)
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestRateLimited_CreatesRetryableProviderError(t *testing.T) {
	err := RateLimited("provider backpressure", nil)

	assert.Equal(t, CategoryProvider, err.Category)
	assert.Equal(t, KindRateLimited, err.Kind)
	assert.True(t, err.Retryable)
}

func TestProviderUnavailable_CreatesProviderCategoryError(t *testing.T) {
	err := ProviderUnavailable("circuit open", nil)

	assert.Equal(t, CategoryProvider, err.Category)
	assert.Equal(t, KindProviderUnavailable, err.Kind)
}

func TestModelMismatch_CreatesFatalValidationError(t *testing.T) {
	err := ModelMismatch("expected dimensions 768, got 256")

	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, SeverityFatal, err.Severity)
}

func TestBadInput_CreatesNonRetryableValidationError(t *testing.T) {
	err := BadInput("query cannot be empty", nil)

	assert.Equal(t, CategoryValidation, err.Category)
	assert.False(t, err.Retryable)
}

func TestSchemaMismatch_CreatesFatalStoreError(t *testing.T) {
	err := SchemaMismatch("store schema version 2, expected 3")

	assert.Equal(t, CategoryStore, err.Category)
	assert.Equal(t, SeverityFatal, err.Severity)
}

func TestCancelled_CreatesCancelledKind(t *testing.T) {
	err := Cancelled()

	assert.Equal(t, KindCancelled, err.Kind)
	assert.Equal(t, ErrCodeCancelled, err.Code)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable pipeline error",
			err:      New(ErrCodeRateLimited, "rate limited", nil),
			expected: true,
		},
		{
			name:     "non-retryable pipeline error",
			err:      New(ErrCodeBadInput, "bad input", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(ErrCodeTimeout, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "fatal error",
			err:      New(ErrCodeCorruptIndex, "index corrupt", nil),
			expected: true,
		},
		{
			name:     "fatal schema mismatch",
			err:      New(ErrCodeSchemaMismatch, "schema mismatch", nil),
			expected: true,
		},
		{
			name:     "non-fatal error",
			err:      New(ErrCodeRateLimited, "rate limited", nil),
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}

func TestGetKind_ExtractsKind(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", nil)
	assert.Equal(t, KindTimeout, GetKind(err))
	assert.Equal(t, Kind(""), GetKind(errors.New("standard")))
}

func TestGetCode_ExtractsCode(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", nil)
	assert.Equal(t, ErrCodeTimeout, GetCode(err))
	assert.Equal(t, "", GetCode(errors.New("standard")))
}
