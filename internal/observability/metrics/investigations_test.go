package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.record("count", name, float64(value), tags)
}

func (s *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	s.record("gauge", name, value, tags)
}

func (s *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.record("timing", name, float64(value.Milliseconds()), tags)
}

func (s *recordingSink) record(kind, name string, value float64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, recordedMetric{kind: kind, name: name, value: value, tags: tags})
}

func TestEmitInvestigationLifecycle(t *testing.T) {
	sink := &recordingSink{}

	EmitInvestigationLifecycle(sink, InvestigationMetric{Transition: TransitionStarted, Depth: "medium", Planned: 3})
	EmitInvestigationLifecycle(sink, InvestigationMetric{
		Transition: TransitionFailed,
		Duration:   2 * time.Second,
		Err:        errors.New("store down"),
	})

	require.Len(t, sink.metrics, 4)
	assert.Equal(t, "investigation.lifecycle", sink.metrics[0].name)
	assert.Equal(t, "success", sink.metrics[0].tags["result"])
	assert.Equal(t, "medium", sink.metrics[0].tags["depth"])
	assert.Equal(t, "investigation.planned_capabilities", sink.metrics[1].name)
	assert.InDelta(t, 3.0, sink.metrics[1].value, 0.001)

	failed := sink.metrics[2]
	assert.Equal(t, "error", failed.tags["result"])
	assert.Equal(t, "errors_errorstring", failed.tags["error_class"])
	assert.Equal(t, "investigation.duration", sink.metrics[3].name)
	assert.InDelta(t, 2000.0, sink.metrics[3].value, 0.001)
}

func TestEmitCapabilityResult(t *testing.T) {
	sink := &recordingSink{}
	EmitCapabilityResult(sink, CapabilityMetric{
		Capability: "sherlock",
		Category:   "username",
		Status:     "failed",
		ErrorClass: "timeout",
		Duration:   250 * time.Millisecond,
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, "capability.result", sink.metrics[0].name)
	assert.Equal(t, "timeout", sink.metrics[0].tags["error_class"])
	assert.Equal(t, "capability.duration", sink.metrics[1].name)
}

func TestNilSink(t *testing.T) {
	EmitInvestigationLifecycle(nil, InvestigationMetric{Transition: TransitionStarted})
	EmitCapabilityResult(nil, CapabilityMetric{Capability: "whois"})
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "1"}
	cp := CloneTags(src)
	cp["a"] = "2"
	assert.Equal(t, "1", src["a"])
}
