package outbox

import "time"

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
	RecordEventDropped(eventType string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(string, bool, time.Duration) {}
func (n *NoOpMetricsCollector) RecordBatchProcessed(int, time.Duration)          {}
func (n *NoOpMetricsCollector) RecordOutboxLag(int)                              {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(string, int, bool)           {}
func (n *NoOpMetricsCollector) RecordEventDropped(string)                        {}
