package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryMiddleware_SuccessOnFirstAttempt(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := RetryMiddleware(3, 10*time.Millisecond, time.Second)(mock)

	response, tokensIn, tokensOut, err := wrapped.DoRequest(context.Background(), "test prompt", nil)

	require.NoError(t, err)
	assert.Equal(t, `{"score": 75}`, response)
	assert.Equal(t, 10, tokensIn)
	assert.Equal(t, 20, tokensOut)
	assert.Equal(t, 1, mock.Calls(), "no retries on success")
}

func TestRetryMiddleware_RetriesTransientErrors(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.FailUntilAttempt = 2
	wrapped := RetryMiddleware(3, time.Millisecond, time.Second)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "test prompt", nil)

	require.NoError(t, err, "should succeed once the transient failures pass")
	assert.Equal(t, 3, mock.Calls())
}

func TestRetryMiddleware_ExhaustsRetries(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = NewProviderError("mock", ErrorTypeServerError, 500, "persistent failure", nil)
	wrapped := RetryMiddleware(2, time.Millisecond, time.Second)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "test prompt", nil)

	require.Error(t, err)
	assert.Equal(t, 3, mock.Calls(), "initial attempt plus two retries")

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrorTypeServerError, provErr.Type)
}

func TestRetryMiddleware_DoesNotRetryAuthErrors(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = NewProviderError("mock", ErrorTypeAuthentication, 401, "bad key", nil)
	wrapped := RetryMiddleware(3, time.Millisecond, time.Second)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "test prompt", nil)

	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls(), "auth failures are not transient")
}

func TestRetryMiddleware_StopsWhenContextCanceled(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = NewProviderError("mock", ErrorTypeServerError, 500, "failure", nil)
	wrapped := RetryMiddleware(5, time.Millisecond, time.Second)(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := wrapped.DoRequest(ctx, "test prompt", nil)

	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls(), "no retries after cancellation")
}
