package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("google", ClientConfig{})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("carrier-pigeon", ClientConfig{APIKey: "key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestNewClientFromCore_AppliesMiddlewareInOrder(t *testing.T) {
	mock := NewMockCoreLLM()

	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &taggedLLM{next: next, name: name, order: &order}
		}
	}

	client := NewClientFromCore(mock, tag("outer"), tag("inner"))

	_, err := client.Complete(context.Background(), "test prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order, "first middleware wraps outermost")
}

func TestClient_CompleteReturnsResponseText(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Response = `{"score": 42}`
	client := NewClientFromCore(mock)

	response, err := client.Complete(context.Background(), "test prompt", map[string]any{"temperature": 0.0})
	require.NoError(t, err)
	assert.Equal(t, `{"score": 42}`, response)
	assert.Equal(t, "test-model", client.GetModel())
	assert.Equal(t, map[string]any{"temperature": 0.0}, mock.LastOpts)
}

func TestRateLimitMiddleware_DelaysBursts(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := RateLimitMiddleware(100, 1)(mock)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, _, _, err := wrapped.DoRequest(context.Background(), "test prompt", nil)
		require.NoError(t, err)
	}

	// Burst of 1 at 100 req/s means the second and third calls each
	// wait roughly 10ms.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Equal(t, 3, mock.Calls())
}

type taggedLLM struct {
	next  CoreLLM
	name  string
	order *[]string
}

func (t *taggedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	*t.order = append(*t.order, t.name)
	return t.next.DoRequest(ctx, prompt, opts)
}

func (t *taggedLLM) GetModel() string { return t.next.GetModel() }
