package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFreshnessGate(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	threshold := 24 * time.Hour

	cases := []struct {
		name  string
		ages  map[DataType]time.Duration
		types []DataType
		fresh bool
	}{
		{
			name:  "scraped 23h ago is fresh",
			ages:  map[DataType]time.Duration{DataTypeXStats: 23 * time.Hour},
			types: []DataType{DataTypeXStats},
			fresh: true,
		},
		{
			name:  "scraped 25h ago is stale",
			ages:  map[DataType]time.Duration{DataTypeXStats: 25 * time.Hour},
			types: []DataType{DataTypeXStats},
			fresh: false,
		},
		{
			name:  "exactly at threshold is stale",
			ages:  map[DataType]time.Duration{DataTypeXStats: threshold},
			types: []DataType{DataTypeXStats},
			fresh: false,
		},
		{
			name:  "never scraped is stale",
			ages:  map[DataType]time.Duration{},
			types: []DataType{DataTypeXStats},
			fresh: false,
		},
		{
			name: "one stale type makes the request stale",
			ages: map[DataType]time.Duration{
				DataTypeXStats: time.Hour,
				DataTypeNews:   25 * time.Hour,
			},
			types: []DataType{DataTypeXStats, DataTypeNews},
			fresh: false,
		},
		{
			name: "all types fresh",
			ages: map[DataType]time.Duration{
				DataTypeXStats: time.Hour,
				DataTypeNews:   2 * time.Hour,
			},
			types: []DataType{DataTypeXStats, DataTypeNews},
			fresh: true,
		},
		{
			name:  "no requested types is stale",
			ages:  map[DataType]time.Duration{DataTypeXStats: time.Hour},
			types: nil,
			fresh: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock(now)
			store := newFakeStore(clock)
			for dt, age := range tc.ages {
				store.setScraped("match-1", dt, now.Add(-age))
			}
			gate := NewFreshnessGate(store, staticPhases{WindowPhase{
				Intensity:          IntensityNormal,
				FreshnessThreshold: threshold,
			}}, clock)

			fresh, err := gate.Fresh(context.Background(), "match-1", tc.types)
			require.NoError(t, err)
			require.Equal(t, tc.fresh, fresh)
		})
	}
}

func TestFreshnessGateReadsPhaseEveryCall(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	clock := newFakeClock(now)
	store := newFakeStore(clock)
	store.setScraped("match-1", DataTypeXStats, now.Add(-30*time.Minute))

	phases := &switchablePhases{phase: WindowPhase{FreshnessThreshold: 24 * time.Hour}}
	gate := NewFreshnessGate(store, phases, clock)

	fresh, err := gate.Fresh(context.Background(), "match-1", []DataType{DataTypeXStats})
	require.NoError(t, err)
	require.True(t, fresh)

	// Window tightened: the same data is now stale.
	phases.phase = WindowPhase{FreshnessThreshold: 15 * time.Minute}
	fresh, err = gate.Fresh(context.Background(), "match-1", []DataType{DataTypeXStats})
	require.NoError(t, err)
	require.False(t, fresh)
}

type switchablePhases struct {
	phase WindowPhase
}

func (p *switchablePhases) WindowPhase() WindowPhase { return p.phase }
