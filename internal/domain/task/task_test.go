package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnrichmentFailureTaskRoundTrip(t *testing.T) {
	in := &EnrichmentFailureTask{
		RunID:        "run-1",
		Page:         3,
		ProductURL:   "https://shop.test/p/b",
		Error:        "HTTP 500",
		FailureStage: "fetch",
		OccurredAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	raw, err := in.TaskValue()
	require.NoError(t, err)

	out, err := UnmarshalTask[*EnrichmentFailureTask](raw)
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.Equal(t, "EnrichmentFailureTask", out.TaskType())
}
