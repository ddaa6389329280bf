package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func reading(deviceID, sensor string, minutes int, value float64) Reading {
	return Reading{
		DeviceID:   deviceID,
		SensorName: sensor,
		Identifier: sensor + "-1",
		Value:      value,
		Timestamp:  base.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestGroupByDevice_FiltersSortsAndTruncates(t *testing.T) {
	readings := []Reading{
		reading("1", "peso", 1, 10),
		reading("2", "peso", 5, 20),
		reading("1", "peso", 3, 30),
		reading("3", "peso", 9, 40),
		reading("1", "peso", 2, 50),
	}

	groups := GroupByDevice(readings, []string{"1", "2"}, 2)

	require.Len(t, groups, 2)
	assert.Equal(t, "1", groups[0].DeviceID)
	assert.Equal(t, 2, groups[0].Count)
	require.Len(t, groups[0].Readings, 2)
	assert.Equal(t, 30.0, groups[0].Readings[0].Value)
	assert.Equal(t, 50.0, groups[0].Readings[1].Value)
	require.NotNil(t, groups[0].LatestReading)
	assert.Equal(t, 30.0, groups[0].LatestReading.Value)

	assert.Equal(t, "2", groups[1].DeviceID)
	assert.Equal(t, 1, groups[1].Count)
}

func TestGroupByDevice_FollowsRequestedOrder(t *testing.T) {
	readings := []Reading{
		reading("1", "peso", 1, 1),
		reading("2", "peso", 9, 2),
	}

	groups := GroupByDevice(readings, []string{"1", "999", "2", "1"}, 10)

	require.Len(t, groups, 2)
	assert.Equal(t, "1", groups[0].DeviceID)
	assert.Equal(t, "2", groups[1].DeviceID)
}

func TestGroupByDevice_NoFilterOrdersByNewest(t *testing.T) {
	readings := []Reading{
		reading("a", "peso", 1, 1),
		reading("b", "peso", 7, 2),
		reading("c", "peso", 4, 3),
	}

	groups := GroupByDevice(readings, nil, 0)

	require.Len(t, groups, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{groups[0].DeviceID, groups[1].DeviceID, groups[2].DeviceID})
}

func TestGroupByDevice_Empty(t *testing.T) {
	groups := GroupByDevice(nil, []string{"1"}, 5)

	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestGroupByDevice_LatestIsIndependentCopy(t *testing.T) {
	groups := GroupByDevice([]Reading{reading("1", "peso", 0, 5)}, nil, 1)
	require.Len(t, groups, 1)

	groups[0].Readings[0].Value = 99

	assert.Equal(t, 5.0, groups[0].LatestReading.Value)
}
