// Package metrics emits the portal's sign-in lifecycle metrics.
package metrics

import (
	"time"

	obserrors "github.com/reachcapital/portal/internal/observability/errors"
	"github.com/reachcapital/portal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// AuthMetric captures one outcome of a sign-in, sign-out or role step.
type AuthMetric struct {
	Name     string
	Result   string
	Provider string
	Role     string
	Duration time.Duration
	Err      error
}

// EmitAuth counts in.Name tagged with its result, provider, role and error
// class, and records a timing when Duration is set.
func EmitAuth(sink statsd.Sink, in AuthMetric) {
	if sink == nil || in.Name == "" {
		return
	}

	tags := map[string]string{}
	if in.Result != "" {
		tags["result"] = in.Result
	}
	if in.Provider != "" {
		tags["provider"] = in.Provider
	}
	if in.Role != "" {
		tags["role"] = in.Role
	}
	if in.Err != nil && in.Result == ResultFailure {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(in.Name, 1, CloneTags(tags))

	if in.Duration > 0 {
		sink.Timing(in.Name+".duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map; empty maps become nil.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
