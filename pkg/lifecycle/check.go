package lifecycle

import (
	"context"
	"errors"
)

// CheckFunc tests one dependency. It returns nil when the dependency is
// usable.
type CheckFunc func(ctx context.Context) error

// Check is a named dependency check reported by [Service.Health], for
// example "postgres" backed by postgres.Client.Health.
type Check struct {
	Name string
	Func CheckFunc
}

// NewCheck returns a validated Check.
//
//	check, err := lifecycle.NewCheck("redis", redisClient.Health)
func NewCheck(name string, fn CheckFunc) (Check, error) {
	if name == "" {
		return Check{}, errors.New("lifecycle: check name must not be empty")
	}
	if fn == nil {
		return Check{}, errors.New("lifecycle: check " + name + " has no function")
	}
	return Check{Name: name, Func: fn}, nil
}

// CheckStatusOK is the status recorded for a passing check.
const CheckStatusOK = "ok"

// HealthReport is the result of [Service.Health]. Checks maps each check
// name to [CheckStatusOK] or a short failure description.
type HealthReport struct {
	State  State             `json:"state"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthy reports whether the process is running and every check passed.
func (r HealthReport) Healthy() bool {
	if r.State != StateRunning {
		return false
	}
	for _, status := range r.Checks {
		if status != CheckStatusOK {
			return false
		}
	}
	return true
}
