package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// DeliveryStats aggregates the delivery counter by status, kind and channel.
type DeliveryStats struct {
	Total     float64                       `json:"total"`
	ByStatus  map[string]float64            `json:"by_status"`
	ByKind    map[string]map[string]float64 `json:"by_kind"`
	ByChannel map[string]map[string]float64 `json:"by_channel"`
}

// SnapshotDeliveries reads the delivery counter back out of gatherer.
func SnapshotDeliveries(gatherer prometheus.Gatherer) DeliveryStats {
	stats := DeliveryStats{
		ByStatus:  map[string]float64{},
		ByKind:    map[string]map[string]float64{},
		ByChannel: map[string]map[string]float64{},
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return stats
	}

	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == DeliveriesMetricName {
			family = mf
			break
		}
	}
	if family == nil {
		return stats
	}

	for _, metric := range family.Metric {
		if metric == nil || metric.GetCounter() == nil {
			continue
		}
		value := metric.GetCounter().GetValue()
		kind := labelValue(metric, "kind")
		channel := labelValue(metric, "channel")
		status := labelValue(metric, "status")

		stats.Total += value
		stats.ByStatus[status] += value
		if stats.ByKind[kind] == nil {
			stats.ByKind[kind] = map[string]float64{}
		}
		stats.ByKind[kind][status] += value
		if stats.ByChannel[channel] == nil {
			stats.ByChannel[channel] = map[string]float64{}
		}
		stats.ByChannel[channel][status] += value
	}
	return stats
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
