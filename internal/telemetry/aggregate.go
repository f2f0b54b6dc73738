// FilePath: internal/telemetry/aggregate.go
package telemetry

import (
	"sort"
	"time"

	"github.com/envimon/hub/internal/models"
)

// Aggregate reduces readings into fixed-width buckets, computing min, max
// and mean per numeric field plus a sample count. It is generic over the
// fields present on each reading: a bucket simply aggregates whatever field
// names the envelope carries.
func Aggregate(readings []models.Reading, interval time.Duration) []models.AggregateBucket {
	if len(readings) == 0 {
		return []models.AggregateBucket{}
	}

	type accumulator struct {
		min, max, sum float64
		count         int
	}
	type bucketState struct {
		sensorID int64
		start    time.Time
		count    int
		fields   map[string]*accumulator
	}

	buckets := make(map[time.Time]*bucketState)
	for _, reading := range readings {
		start := reading.Timestamp.Truncate(interval)
		b, ok := buckets[start]
		if !ok {
			b = &bucketState{
				sensorID: reading.SensorID,
				start:    start,
				fields:   make(map[string]*accumulator),
			}
			buckets[start] = b
		}
		b.count++
		for name, value := range reading.Fields {
			acc, ok := b.fields[name]
			if !ok {
				acc = &accumulator{min: value, max: value}
				b.fields[name] = acc
			}
			if value < acc.min {
				acc.min = value
			}
			if value > acc.max {
				acc.max = value
			}
			acc.sum += value
			acc.count++
		}
	}

	out := make([]models.AggregateBucket, 0, len(buckets))
	for _, b := range buckets {
		fields := make(map[string]models.FieldStats, len(b.fields))
		for name, acc := range b.fields {
			fields[name] = models.FieldStats{
				Min: acc.min,
				Max: acc.max,
				Avg: acc.sum / float64(acc.count),
			}
		}
		out = append(out, models.AggregateBucket{
			SensorID:  b.sensorID,
			StartTime: b.start,
			EndTime:   b.start.Add(interval),
			Count:     b.count,
			Fields:    fields,
		})
	}

	// Newest first, matching the raw query order.
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}
