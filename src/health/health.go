// Package health validates a restored stack by polling the runtime until
// every service container is up, honoring declared healthchecks when the
// image defines one.
package health

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"compose-migrate/src/backup"
	"compose-migrate/src/dockerapi"
)

// Status is the final verdict for one service.
type Status string

const (
	StatusOK      Status = "ok"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Result is the verdict for one service after polling.
type Result struct {
	Service   string
	Container string
	Status    Status
	Detail    string
}

// Report collects per-service results for one validation run.
type Report struct {
	Results []Result
}

// OK reports whether every service came up healthy.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if res.Status != StatusOK {
			return false
		}
	}
	return true
}

// Failed returns the services that did not come up.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status != StatusOK {
			out = append(out, res)
		}
	}
	return out
}

// TimeoutError reports that at least one service never became healthy
// within the allowed window.
type TimeoutError struct {
	Timeout time.Duration
	Failed  []Result
}

func (e *TimeoutError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, r := range e.Failed {
		names = append(names, r.Service)
	}
	return fmt.Sprintf("%d service(s) not healthy after %s: %v", len(e.Failed), e.Timeout, names)
}

// Err returns nil when the report is clean, a TimeoutError otherwise.
func (r *Report) Err(timeout time.Duration) error {
	if r.OK() {
		return nil
	}
	return &TimeoutError{Timeout: timeout, Failed: r.Failed()}
}

// Options tunes the polling loop.
type Options struct {
	// Interval between status polls. Defaults to 2s.
	Interval time.Duration
	// Timeout is the total window per run, shared by all services.
	// Defaults to 60s.
	Timeout time.Duration
}

func (o Options) interval() time.Duration {
	if o.Interval <= 0 {
		return 2 * time.Second
	}
	return o.Interval
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 60 * time.Second
	}
	return o.Timeout
}

// healthy decides whether a single observation counts as up: the container
// must be running, and when it declares a healthcheck the check must have
// passed.
func healthy(st dockerapi.ServiceState) bool {
	if !st.Exists || !st.Running {
		return false
	}
	return st.Health == "" || st.Health == "healthy"
}

// Check polls every manifest service until it is healthy or the window
// closes, then writes a per-service summary line to out.
func Check(ctx context.Context, client dockerapi.Client, services []backup.Service, opts Options, out io.Writer) (*Report, error) {
	deadline := time.Now().Add(opts.timeout())
	pending := make(map[string]backup.Service, len(services))
	for _, s := range services {
		pending[s.Name] = s
	}

	report := &Report{}
	lastSeen := make(map[string]dockerapi.ServiceState, len(services))

	for len(pending) > 0 && time.Now().Before(deadline) {
		for name, svc := range pending {
			st, err := client.ServiceStatus(ctx, svc.ContainerName)
			if err != nil {
				report.Results = append(report.Results, Result{
					Service:   name,
					Container: svc.ContainerName,
					Status:    StatusError,
					Detail:    err.Error(),
				})
				delete(pending, name)
				continue
			}
			lastSeen[name] = st
			if healthy(st) {
				report.Results = append(report.Results, Result{
					Service:   name,
					Container: svc.ContainerName,
					Status:    StatusOK,
					Detail:    describe(st),
				})
				delete(pending, name)
			}
		}
		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.interval()):
		}
	}

	for name, svc := range pending {
		log.Warn("service did not become healthy", "service", name, "container", svc.ContainerName)
		report.Results = append(report.Results, Result{
			Service:   name,
			Container: svc.ContainerName,
			Status:    StatusTimeout,
			Detail:    describe(lastSeen[name]),
		})
	}

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Service < report.Results[j].Service
	})
	if out != nil {
		for _, r := range report.Results {
			fmt.Fprintf(out, "%-10s %s (%s)\n", r.Status, r.Service, r.Detail)
		}
	}
	return report, nil
}

func describe(st dockerapi.ServiceState) string {
	switch {
	case !st.Exists:
		return "container not found"
	case !st.Running:
		return "not running"
	case st.Health != "":
		return "health=" + st.Health
	default:
		return "running"
	}
}
