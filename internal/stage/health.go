package stage

import "context"

// Health summarizes the readiness of a processing stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Checker is implemented by every stage that can report readiness.
type Checker interface {
	HealthCheck(context.Context) Health
}

// CheckAll runs every checker and returns the collected records.
func CheckAll(ctx context.Context, checkers ...Checker) []Health {
	results := make([]Health, 0, len(checkers))
	for _, checker := range checkers {
		if checker == nil {
			continue
		}
		results = append(results, checker.HealthCheck(ctx))
	}
	return results
}
