package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbio/pipeline"
)

func TestClassify_ContextErrors(t *testing.T) {
	assert.Equal(t, pipeline.CategoryTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, pipeline.CategoryCancelled, Classify(context.Canceled))
}

func TestClassify_SentinelErrors(t *testing.T) {
	assert.Equal(t, pipeline.CategoryCircuitOpen, Classify(pipeline.ErrCircuitOpen))
	assert.Equal(t, pipeline.CategoryBulkhead, Classify(pipeline.ErrBulkheadTimeout))
}

func TestClassify_TypedErrorPassthrough(t *testing.T) {
	se := pipeline.NewStageError(pipeline.CategoryAuth, "s", "bad key")
	assert.Equal(t, pipeline.CategoryAuth, Classify(se))
}

func TestClassify_StringRefinement(t *testing.T) {
	cases := []struct {
		message string
		want    pipeline.ErrorCategory
	}{
		{"rate limit exceeded", pipeline.CategoryRateLimited},
		{"HTTP 429 Too Many Requests", pipeline.CategoryRateLimited},
		{"unauthorized access", pipeline.CategoryAuth},
		{"invalid API key", pipeline.CategoryAuth},
		{"request timed out", pipeline.CategoryTimeout},
		{"connection refused", pipeline.CategoryNetwork},
		{"DNS lookup failed", pipeline.CategoryNetwork},
		{"invalid sequence format", pipeline.CategoryValidation},
		{"out of memory", pipeline.CategorySystem},
		{"something odd happened", pipeline.CategoryUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(errors.New(tc.message)), tc.message)
	}
}

func TestClassifyStage_WrapsWithStageAndAttempt(t *testing.T) {
	se := ClassifyStage(errors.New("connection reset"), "structure_lookup", 2)
	require.NotNil(t, se)
	assert.Equal(t, pipeline.CategoryNetwork, se.Category)
	assert.Equal(t, "structure_lookup", se.Stage)
	assert.Equal(t, 2, se.Attempt)
}

func TestClassifyStage_KeepsTypedCategory(t *testing.T) {
	orig := pipeline.NewStageError(pipeline.CategoryValidation, "", "bad input")
	se := ClassifyStage(orig, "seq", 1)
	assert.Equal(t, pipeline.CategoryValidation, se.Category)
	assert.Equal(t, "seq", se.Stage)
	assert.Equal(t, 1, se.Attempt)
}

func TestClassifyStage_Nil(t *testing.T) {
	assert.Nil(t, ClassifyStage(nil, "s", 0))
}
