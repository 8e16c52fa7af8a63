// Package insights turns a window of conversation events into the ranked
// bias summary that drives a report.
package insights

import (
	"sort"

	"github.com/dmitrijs2005/insightly/internal/server/models"
)

// TopBiasLimit caps how many aggregates a summary carries.
const TopBiasLimit = 5

// defaultSeverity is applied when a detection carries neither confidence nor
// intensity. The source data applies this default unconditionally; excluding
// such detections would also change counts and therefore ranking.
const defaultSeverity = 50.0

// normalizeSeverity collapses the two legacy severity shapes onto a single
// 0–100 scale: confidence (0–1) scaled by 100 wins, then raw intensity,
// then the default.
func normalizeSeverity(d models.BiasDetection) float64 {
	switch {
	case d.Confidence != nil:
		return *d.Confidence * 100
	case d.Intensity != nil:
		return *d.Intensity
	default:
		return defaultSeverity
	}
}

// Aggregate groups every detection in events by bias name and ranks the
// result by count descending, then average intensity descending, then name
// ascending, truncated to TopBiasLimit. Empty input yields an empty slice.
//
// The function is pure: it reads nothing but its argument and never fails.
func Aggregate(events []*models.ConversationEvent) []models.BiasAggregate {
	type acc struct {
		count int
		sum   float64
	}
	byName := make(map[string]*acc)

	for _, e := range events {
		for _, d := range e.Detections {
			a, ok := byName[d.Name]
			if !ok {
				a = &acc{}
				byName[d.Name] = a
			}
			a.count++
			a.sum += normalizeSeverity(d)
		}
	}

	result := make([]models.BiasAggregate, 0, len(byName))
	for name, a := range byName {
		result = append(result, models.BiasAggregate{
			Name:         name,
			Count:        a.count,
			AvgIntensity: a.sum / float64(a.count),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		if result[i].AvgIntensity != result[j].AvgIntensity {
			return result[i].AvgIntensity > result[j].AvgIntensity
		}
		return result[i].Name < result[j].Name
	})

	if len(result) > TopBiasLimit {
		result = result[:TopBiasLimit]
	}
	return result
}
