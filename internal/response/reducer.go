// -----------------------------------------------------------------------
// Response Reducer - Merges per-instance results into grouped responses
// -----------------------------------------------------------------------

package response

import (
	"sort"
	"time"

	"github.com/ternarybob/curro/internal/models"
)

// Reduce merges per-instance results that share a group id into one
// aggregated response per group. Materialization is the map phase of the
// run; this is the reduce.
//
// Within a group, session maps merge by session key with the later value
// in iteration order winning on collision. The group performance point
// takes the minimum start, the maximum end, and the arithmetic mean of
// every other metric. A group of one reduces to that instance's own
// metrics unchanged.
func Reduce(grouped map[string][]*models.InstanceResult) map[string]*models.AggregatedResponse {
	responses := make(map[string]*models.AggregatedResponse, len(grouped))
	for groupID, results := range grouped {
		if len(results) == 0 {
			continue
		}
		responses[groupID] = reduceGroup(groupID, results)
	}
	return responses
}

func reduceGroup(groupID string, results []*models.InstanceResult) *models.AggregatedResponse {
	// Iteration order decides session collisions deterministically even
	// when instances finished out of order.
	ordered := make([]*models.InstanceResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Iteration < ordered[j].Iteration
	})

	sessions := make(map[string]interface{})
	for _, result := range ordered {
		for key, record := range result.Sessions {
			sessions[key] = record
		}
	}

	return &models.AggregatedResponse{
		GroupID:     groupID,
		Instances:   len(ordered),
		Sessions:    sessions,
		Performance: reducePerformance(ordered),
	}
}

func reducePerformance(results []*models.InstanceResult) models.PerformancePoint {
	point := models.PerformancePoint{}
	n := len(results)
	if n == 0 {
		return point
	}

	var (
		authTime     time.Duration
		runTime      time.Duration
		setupTime    time.Duration
		teardownTime time.Duration
		setupDeleg   time.Duration
		teardnDeleg  time.Duration
		timeouts     float64
	)

	for _, result := range results {
		perf := result.Performance
		if !perf.Start.IsZero() && (point.Start.IsZero() || perf.Start.Before(point.Start)) {
			point.Start = perf.Start
		}
		if perf.End.After(point.End) {
			point.End = perf.End
		}

		authTime += perf.AuthTime
		runTime += perf.RunTime
		setupTime += perf.SetupTime
		teardownTime += perf.TeardownTime
		setupDeleg += perf.SetupDelegationTime
		teardnDeleg += perf.TeardownDelegationTime
		timeouts += perf.Timeouts
	}

	count := time.Duration(n)
	point.AuthTime = authTime / count
	point.RunTime = runTime / count
	point.SetupTime = setupTime / count
	point.TeardownTime = teardownTime / count
	point.SetupDelegationTime = setupDeleg / count
	point.TeardownDelegationTime = teardnDeleg / count
	point.Timeouts = timeouts / float64(n)

	return point
}
