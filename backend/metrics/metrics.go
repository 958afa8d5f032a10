package metrics

import "time"

type Tags map[string]string

type Client interface {
	Counter(name string, tags Tags, value int64)

	Distribution(name string, tags Tags, value float64)

	Gauge(name string, tags Tags, value int64)

	Timing(name string, tags Tags, duration time.Duration)

	WithTags(tags Tags) Client
}

type noopClient struct{}

// NewNoopMetricsClient returns a client that discards all measurements.
func NewNoopMetricsClient() Client {
	return &noopClient{}
}

func (*noopClient) Counter(string, Tags, int64)        {}
func (*noopClient) Distribution(string, Tags, float64) {}
func (*noopClient) Gauge(string, Tags, int64)          {}
func (*noopClient) Timing(string, Tags, time.Duration) {}
func (n *noopClient) WithTags(Tags) Client             { return n }
