package repositorycache

import "github.com/puzpuzpuz/xsync/v3"

// Stats is a point in time snapshot of the layer counters.
type Stats struct {
	Hits                 int64 `json:"hits"`
	Misses               int64 `json:"misses"`
	DecodeFailures       int64 `json:"decode_failures"`
	Invalidations        int64 `json:"invalidations"`
	InvalidationFailures int64 `json:"invalidation_failures"`
}

// HitRatio returns hits / (hits + misses), or 0 before any read.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type counters struct {
	hits                 *xsync.Counter
	misses               *xsync.Counter
	decodeFailures       *xsync.Counter
	invalidations        *xsync.Counter
	invalidationFailures *xsync.Counter
}

func newCounters() *counters {
	return &counters{
		hits:                 xsync.NewCounter(),
		misses:               xsync.NewCounter(),
		decodeFailures:       xsync.NewCounter(),
		invalidations:        xsync.NewCounter(),
		invalidationFailures: xsync.NewCounter(),
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:                 c.hits.Value(),
		Misses:               c.misses.Value(),
		DecodeFailures:       c.decodeFailures.Value(),
		Invalidations:        c.invalidations.Value(),
		InvalidationFailures: c.invalidationFailures.Value(),
	}
}

func (c *counters) reset() {
	c.hits.Reset()
	c.misses.Reset()
	c.decodeFailures.Reset()
	c.invalidations.Reset()
	c.invalidationFailures.Reset()
}
