package telemetry

import (
	"sort"
)

// DeviceReadings is one device's slice of recent readings.
type DeviceReadings struct {
	DeviceID      string    `json:"deviceId"`
	Readings      []Reading `json:"readings"`
	LatestReading *Reading  `json:"latestReading"`
	Count         int       `json:"count"`
}

// GroupByDevice sorts readings newest first, groups them by device and keeps
// at most limit readings per device.
//
// When deviceIDs is non-empty only those devices are kept and the result
// follows their order; otherwise groups are ordered by their newest reading.
// Devices without readings are omitted. A limit below 1 keeps everything.
func GroupByDevice(readings []Reading, deviceIDs []string, limit int) []DeviceReadings {
	var wanted map[string]bool
	if len(deviceIDs) > 0 {
		wanted = make(map[string]bool, len(deviceIDs))
		for _, id := range deviceIDs {
			wanted[id] = true
		}
	}

	sorted := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if wanted == nil || wanted[r.DeviceID] {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	groups := make(map[string]*DeviceReadings)
	var order []string
	for _, r := range sorted {
		g, ok := groups[r.DeviceID]
		if !ok {
			g = &DeviceReadings{DeviceID: r.DeviceID}
			groups[r.DeviceID] = g
			order = append(order, r.DeviceID)
		}
		if limit > 0 && len(g.Readings) >= limit {
			continue
		}
		g.Readings = append(g.Readings, r)
	}

	if wanted != nil {
		order = order[:0]
		seen := make(map[string]bool, len(deviceIDs))
		for _, id := range deviceIDs {
			if _, ok := groups[id]; ok && !seen[id] {
				order = append(order, id)
				seen[id] = true
			}
		}
	}

	result := make([]DeviceReadings, 0, len(order))
	for _, id := range order {
		g := groups[id]
		latest := g.Readings[0]
		g.LatestReading = &latest
		g.Count = len(g.Readings)
		result = append(result, *g)
	}
	return result
}
