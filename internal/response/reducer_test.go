package response

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/curro/internal/models"
)

func TestReduce_SingletonGroupIsIdentity(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	result := &models.InstanceResult{
		InstanceID: "run-1",
		GroupID:    "grp-1",
		Sessions:   map[string]interface{}{"login": "ok"},
		Performance: models.PerformancePoint{
			Start:    start,
			End:      start.Add(2 * time.Second),
			AuthTime: 150 * time.Millisecond,
			RunTime:  1800 * time.Millisecond,
			Timeouts: 1,
		},
	}

	responses := Reduce(map[string][]*models.InstanceResult{"grp-1": {result}})

	require.Len(t, responses, 1)
	resp := responses["grp-1"]
	require.NotNil(t, resp)
	assert.Equal(t, 1, resp.Instances)
	assert.Equal(t, result.Sessions, resp.Sessions)
	assert.Equal(t, result.Performance, resp.Performance)
}

func TestReduce_SessionsMergeByIterationOrder(t *testing.T) {
	grouped := map[string][]*models.InstanceResult{
		"grp-1": {
			// Delivered out of order; iteration order decides collisions
			{Iteration: 2, Sessions: map[string]interface{}{"shared": "last", "c": 3}},
			{Iteration: 0, Sessions: map[string]interface{}{"shared": "first", "a": 1}},
			{Iteration: 1, Sessions: map[string]interface{}{"b": 2}},
		},
	}

	resp := Reduce(grouped)["grp-1"]
	require.NotNil(t, resp)
	assert.Equal(t, 3, resp.Instances)
	assert.Equal(t, "last", resp.Sessions["shared"])
	assert.Equal(t, 1, resp.Sessions["a"])
	assert.Equal(t, 2, resp.Sessions["b"])
	assert.Equal(t, 3, resp.Sessions["c"])
}

func TestReduce_PerformanceEnvelopeAndMeans(t *testing.T) {
	early := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	grouped := map[string][]*models.InstanceResult{
		"grp-1": {
			{
				Iteration: 0,
				Performance: models.PerformancePoint{
					Start:    early,
					End:      early.Add(10 * time.Second),
					AuthTime: 100 * time.Millisecond,
					RunTime:  4 * time.Second,
					Timeouts: 0,
				},
			},
			{
				Iteration: 1,
				Performance: models.PerformancePoint{
					Start:    early.Add(5 * time.Second),
					End:      late,
					AuthTime: 300 * time.Millisecond,
					RunTime:  6 * time.Second,
					Timeouts: 2,
				},
			},
		},
	}

	perf := Reduce(grouped)["grp-1"].Performance

	assert.Equal(t, early, perf.Start, "group start is the earliest instance start")
	assert.Equal(t, late, perf.End, "group end is the latest instance end")
	assert.Equal(t, 200*time.Millisecond, perf.AuthTime)
	assert.Equal(t, 5*time.Second, perf.RunTime)
	assert.Equal(t, 1.0, perf.Timeouts)
}

func TestReduce_ZeroStartsIgnoredInMinimum(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	grouped := map[string][]*models.InstanceResult{
		"grp-1": {
			{Iteration: 0},
			{Iteration: 1, Performance: models.PerformancePoint{Start: start, End: start.Add(time.Second)}},
		},
	}

	perf := Reduce(grouped)["grp-1"].Performance
	assert.Equal(t, start, perf.Start)
}

func TestReduce_MultipleGroupsStayDisjoint(t *testing.T) {
	grouped := map[string][]*models.InstanceResult{
		"grp-1": {{Iteration: 0, Sessions: map[string]interface{}{"a": 1}}},
		"grp-2": {
			{Iteration: 0, Sessions: map[string]interface{}{"b": 2}},
			{Iteration: 1, Sessions: map[string]interface{}{"c": 3}},
		},
	}

	responses := Reduce(grouped)
	require.Len(t, responses, 2)
	assert.Equal(t, 1, responses["grp-1"].Instances)
	assert.Equal(t, 2, responses["grp-2"].Instances)
	assert.NotContains(t, responses["grp-1"].Sessions, "b")
	assert.Equal(t, "grp-2", responses["grp-2"].GroupID)
}

func TestReduce_EmptyInput(t *testing.T) {
	assert.Empty(t, Reduce(nil))
	assert.Empty(t, Reduce(map[string][]*models.InstanceResult{"grp-1": {}}))
}
