// Package metrics renders hub counters in the Prometheus text format.
package metrics

import (
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/vovakirdan/wapcast-server/internal/core"
)

const namespace = "wapcast_"

// Source reports the live hub state. *core.Hub satisfies it.
type Source interface {
	Stats() (core.Stats, uint64, uint64)
}

// Families builds the metric families for one scrape.
func Families(src Source) []*dto.MetricFamily {
	stats, delivered, dropped := src.Stats()

	return []*dto.MetricFamily{
		gauge("connections", "Open client connections.", stats.Connections),
		gauge("identified_connections", "Connections associated with a user.", stats.Identified),
		gauge("users", "Distinct identified users.", stats.Users),
		gauge("rooms", "Non-empty primary rooms.", stats.PrimaryRooms),
		gauge("editor_contexts", "Non-empty editor contexts.", stats.EditorContexts),
		gauge("watch_labels", "Labels with at least one watcher.", stats.WatchLabels),
		counter("events_delivered_total", "Events queued to a recipient.", delivered),
		counter("events_dropped_total", "Events dropped on a full or closed queue.", dropped),
	}
}

// Write renders src to w in the text exposition format.
func Write(w io.Writer, src Source) error {
	for _, mf := range Families(src) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// ContentType is the Content-Type header value for Write output.
func ContentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}

func gauge(name, help string, v int) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: proto.Float64(float64(v))}},
		},
	}
}

func counter(name, help string, v uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			{Counter: &dto.Counter{Value: proto.Float64(float64(v))}},
		},
	}
}
