package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	err := New(ErrCodePathTraversal, "escape attempt", nil)

	assert.Equal(t, CategoryContent, err.Category)
	assert.Equal(t, SeverityError, err.Severity)
	assert.False(t, err.Retryable)
}

func TestNew_StoreUnavailableIsFatal(t *testing.T) {
	err := StoreUnavailable("index directory missing", nil)

	assert.Equal(t, CategoryIO, err.Category)
	assert.True(t, IsFatal(err))
}

func TestNew_EmbeddingIsRetryable(t *testing.T) {
	err := EmbeddingError("backend timeout", nil)

	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeEmbedding, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection refused", err.Message)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeEmbedding, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeParse, "bad yaml", nil)
	b := New(ErrCodeParse, "different message", nil)
	c := New(ErrCodeEmbedding, "bad yaml", nil)

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestHasCode_ThroughWrappedChain(t *testing.T) {
	inner := PathTraversal("../etc/passwd")
	outer := fmt.Errorf("hydrating result: %w", inner)

	assert.True(t, HasCode(outer, ErrCodePathTraversal))
	assert.False(t, HasCode(outer, ErrCodeParse))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestWithDetail_Chaining(t *testing.T) {
	err := ParseError("Packs/Demo/Playbooks/bad.yml", errors.New("yaml: line 3")).
		WithDetail("pack", "Demo")

	assert.Equal(t, "Demo", err.Details["pack"])
	assert.Equal(t, "Packs/Demo/Playbooks/bad.yml", err.Details["path"])
}
