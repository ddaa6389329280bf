package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
	"github.com/nerrad567/petcare-core/internal/telemetry"
)

// fakeFinder serves readings from memory the way the Mongo aggregation does.
type fakeFinder struct {
	readings []telemetry.Reading

	mu           sync.Mutex
	recentErr    error
	latestErr    error
	blockRecent  bool
	recentCalls  int
	latestCalls  int
	lastIDs      []string
	lastPerDev   int
	lastLatestMx int
}

func (f *fakeFinder) RecentByDevice(ctx context.Context, ids []string, perDevice int) ([]telemetry.Reading, error) {
	f.mu.Lock()
	f.recentCalls++
	f.lastIDs = ids
	f.lastPerDev = perDevice
	block, err := f.blockRecent, f.recentErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	var out []telemetry.Reading
	for _, g := range telemetry.GroupByDevice(f.readings, ids, perDevice) {
		out = append(out, g.Readings...)
	}
	return out, nil
}

func (f *fakeFinder) Latest(_ context.Context, max int) ([]telemetry.Reading, error) {
	f.mu.Lock()
	f.latestCalls++
	f.lastLatestMx = max
	err := f.latestErr
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	groups := telemetry.GroupByDevice(f.readings, nil, 0)
	var out []telemetry.Reading
	for _, g := range groups {
		out = append(out, g.Readings...)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

var snapshotBase = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return snapshotBase.Add(time.Duration(minutes) * time.Minute)
}

// sevenAndNine holds 5 readings for device 7 (3 newer, 2 older) and one for device 9.
func sevenAndNine() []telemetry.Reading {
	return []telemetry.Reading{
		{DeviceID: "7", SensorName: "peso", Value: 1, Timestamp: at(1)},
		{DeviceID: "7", SensorName: "peso", Value: 2, Timestamp: at(2)},
		{DeviceID: "7", SensorName: "peso", Value: 3, Timestamp: at(10)},
		{DeviceID: "7", SensorName: "peso", Value: 4, Timestamp: at(11)},
		{DeviceID: "7", SensorName: "peso", Value: 5, Timestamp: at(12)},
		{DeviceID: "9", SensorName: "nivel", Value: 9, Timestamp: at(20)},
	}
}

func newTestResponder(f ReadingFinder, cfg ResponderConfig) *Responder {
	r := NewResponder(f, cfg, logging.Discard(), nil)
	r.now = func() time.Time { return fixedNow }
	return r
}

func TestResponder_SnapshotLimitsPerDevice(t *testing.T) {
	finder := &fakeFinder{readings: sevenAndNine()}
	r := newTestResponder(finder, ResponderConfig{})
	limit := 2.0

	snap, err := r.Snapshot(context.Background(), InitialDataRequest{
		DeviceIDs: []telemetry.FlexID{"7"},
		Limit:     &limit,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, finder.lastIDs)
	assert.False(t, snap.Degraded)
	require.Len(t, snap.Groups, 1)
	g := snap.Groups[0]
	assert.Equal(t, "7", g.DeviceID)
	require.Len(t, g.Readings, 2)
	assert.Equal(t, 5.0, g.Readings[0].Value)
	assert.Equal(t, 4.0, g.Readings[1].Value)
	assert.Equal(t, 5.0, g.LatestReading.Value)
}

func TestResponder_LimitDefaultsAndCap(t *testing.T) {
	finder := &fakeFinder{}
	r := newTestResponder(finder, ResponderConfig{DefaultLimit: 10, MaxLimit: 100})

	tests := []struct {
		name  string
		limit *float64
		want  int
	}{
		{name: "missing", limit: nil, want: 10},
		{name: "zero", limit: ptr(0), want: 10},
		{name: "negative", limit: ptr(-4), want: 10},
		{name: "fractional", limit: ptr(5.9), want: 5},
		{name: "capped", limit: ptr(1000), want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Snapshot(context.Background(), InitialDataRequest{Limit: tt.limit})
			require.NoError(t, err)
			assert.Equal(t, tt.want, finder.lastPerDev)
		})
	}
}

func TestResponder_FallbackOnError(t *testing.T) {
	finder := &fakeFinder{readings: sevenAndNine(), recentErr: errors.New("aggregate timed out")}
	r := newTestResponder(finder, ResponderConfig{FallbackMax: 3})

	snap, err := r.Snapshot(context.Background(), InitialDataRequest{DeviceIDs: []telemetry.FlexID{"7"}})

	require.NoError(t, err)
	assert.True(t, snap.Degraded)
	assert.Equal(t, 1, finder.latestCalls)
	assert.Equal(t, 3, finder.lastLatestMx)
	// Latest(3) returns the newest three overall: 9@20, 7@12, 7@11.
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, "7", snap.Groups[0].DeviceID)
	assert.Len(t, snap.Groups[0].Readings, 2)
}

func TestResponder_FallbackOnTimeout(t *testing.T) {
	finder := &fakeFinder{readings: sevenAndNine(), blockRecent: true}
	r := newTestResponder(finder, ResponderConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	snap, err := r.Snapshot(context.Background(), InitialDataRequest{})

	require.NoError(t, err)
	assert.True(t, snap.Degraded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, snap.Groups, 2)
}

func TestResponder_BothQueriesFail(t *testing.T) {
	finder := &fakeFinder{recentErr: errors.New("down"), latestErr: errors.New("still down")}
	r := newTestResponder(finder, ResponderConfig{})

	_, err := r.Snapshot(context.Background(), InitialDataRequest{})

	assert.ErrorContains(t, err, "down")
	assert.ErrorContains(t, err, "still down")
}

func TestResponder_RespondOnlyToRequester(t *testing.T) {
	reg := NewRegistry()
	requester := newFakeConn("req")
	bystander := newFakeConn("other")
	registerAll(reg, requester, bystander)

	r := newTestResponder(&fakeFinder{readings: sevenAndNine()}, ResponderConfig{})
	limit := 2.0
	r.Respond(context.Background(), requester, "r1", InitialDataRequest{
		DeviceIDs: []telemetry.FlexID{"7"},
		Limit:     &limit,
	})

	got := requester.received(t)
	require.Len(t, got, 1)
	assert.Equal(t, MsgInitialData, got[0].Type)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, false, got[0].Payload["degraded"])

	data, ok := got[0].Payload["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	group := data[0].(map[string]any)
	assert.Equal(t, "7", group["deviceId"])
	assert.Len(t, group["readings"], 2)

	assert.Zero(t, bystander.count())
}

func TestResponder_RespondReportsServiceUnavailable(t *testing.T) {
	requester := newFakeConn("req")
	bystander := newFakeConn("other")
	r := newTestResponder(&fakeFinder{recentErr: errors.New("down"), latestErr: errors.New("down")}, ResponderConfig{})

	r.Respond(context.Background(), requester, "r2", InitialDataRequest{})

	got := requester.received(t)
	require.Len(t, got, 1)
	assert.Equal(t, MsgError, got[0].Type)
	assert.Equal(t, ErrTypeServiceUnavailable, got[0].Payload["type"])
	assert.Zero(t, bystander.count())
}
