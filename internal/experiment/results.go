package experiment

import (
	"errors"
	"sync"

	"github.com/nvandessel/tracesim/internal/models"
)

// Summary counts run outcomes.
type Summary struct {
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Cancelled  int             `json:"cancelled"`
	FailedKeys []models.RunKey `json:"failed_keys,omitempty"`
}

// Results maps every scheduled RunKey to its outcome.
type Results struct {
	ExperimentID string

	order []models.RunKey
	runs  map[models.RunKey]models.RunResult
}

// Len returns the number of recorded results.
func (r *Results) Len() int {
	return len(r.runs)
}

// Get returns the result for key.
func (r *Results) Get(key models.RunKey) (models.RunResult, bool) {
	res, ok := r.runs[key]
	return res, ok
}

// Keys returns the scheduled keys in submission order: scenario order,
// then repeat index.
func (r *Results) Keys() []models.RunKey {
	out := make([]models.RunKey, len(r.order))
	copy(out, r.order)
	return out
}

// Runs returns the recorded results in submission order.
func (r *Results) Runs() []models.RunResult {
	out := make([]models.RunResult, 0, len(r.runs))
	for _, k := range r.order {
		if res, ok := r.runs[k]; ok {
			out = append(out, res)
		}
	}
	return out
}

// Summary counts outcomes. Failed keys are listed in submission order.
func (r *Results) Summary() Summary {
	s := Summary{Total: len(r.order)}
	for _, k := range r.order {
		res, ok := r.runs[k]
		if !ok {
			continue
		}
		switch res.Status() {
		case "succeeded":
			s.Succeeded++
		case "cancelled":
			s.Cancelled++
		default:
			s.Failed++
			s.FailedKeys = append(s.FailedKeys, k)
		}
	}
	return s
}

// Err joins the failures of all runs that failed (not cancelled), or
// returns nil.
func (r *Results) Err() error {
	var errs []error
	for _, k := range r.order {
		if res, ok := r.runs[k]; ok && res.Failure != nil && !res.Failure.Cancelled {
			errs = append(errs, res.Failure)
		}
	}
	return errors.Join(errs...)
}

// collector gathers results from concurrent workers. Results are keyed,
// never appended, so completion order cannot affect the mapping.
type collector struct {
	mu   sync.Mutex
	runs map[models.RunKey]models.RunResult
}

func newCollector(n int) *collector {
	return &collector{runs: make(map[models.RunKey]models.RunResult, n)}
}

func (c *collector) put(res models.RunResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[res.Key] = res
}

func (c *collector) results(experimentID string, order []models.RunKey) *Results {
	c.mu.Lock()
	defer c.mu.Unlock()
	runs := make(map[models.RunKey]models.RunResult, len(c.runs))
	for k, v := range c.runs {
		runs[k] = v
	}
	return &Results{ExperimentID: experimentID, order: order, runs: runs}
}
