package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults for the recorder and health thresholds.
const (
	DefaultCapacity      = 5000
	DefaultWindow        = 60 * time.Minute
	DefaultSlowThreshold = 30 * time.Second

	errorRateAlertPercent   = 10.0
	successRateAlertPercent = 90.0
)

// Sample is one finished workflow execution.
type Sample struct {
	WorkflowID      string        `json:"workflowId"`
	ExecutionID     string        `json:"executionId"`
	Status          string        `json:"status"`
	Duration        time.Duration `json:"duration"`
	StepCount       int           `json:"stepCount"`
	FailedStepCount int           `json:"failedStepCount"`
	Timestamp       time.Time     `json:"timestamp"`
	ErrorCode       string        `json:"errorCode,omitempty"`
}

// Succeeded reports whether the sample is a completed run.
func (s Sample) Succeeded() bool { return s.Status == "COMPLETED" }

// WorkflowMetrics aggregates samples of one workflow over a window.
type WorkflowMetrics struct {
	WorkflowID           string        `json:"workflowId"`
	TotalExecutions      int           `json:"totalExecutions"`
	SuccessfulExecutions int           `json:"successfulExecutions"`
	FailedExecutions     int           `json:"failedExecutions"`
	AverageDuration      time.Duration `json:"averageDuration"`
	AverageStepCount     float64       `json:"averageStepCount"`
	ErrorRate            float64       `json:"errorRate"`
	MostCommonError      string        `json:"mostCommonError,omitempty"`
}

// Health summarises all workflows over a window.
type Health struct {
	Healthy         bool          `json:"healthy"`
	TotalExecutions int           `json:"totalExecutions"`
	SuccessRate     float64       `json:"successRate"`
	AverageDuration time.Duration `json:"averageDuration"`
	ErrorRate       float64       `json:"errorRate"`
	Alerts          []string      `json:"alerts"`
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithCapacity bounds the number of retained samples.
func WithCapacity(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithSlowThreshold sets the mean duration above which health alerts.
func WithSlowThreshold(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.slowThreshold = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder keeps the most recent samples in a bounded ring.
type Recorder struct {
	mu            sync.RWMutex
	ring          []Sample
	next          int
	size          int
	capacity      int
	slowThreshold time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(logger *zap.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		capacity:      DefaultCapacity,
		slowThreshold: DefaultSlowThreshold,
		now:           time.Now,
		logger:        logger.With(zap.String("component", "workflow_metrics")),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ring = make([]Sample, r.capacity)
	return r
}

// Record appends a sample, evicting the oldest once full.
func (r *Recorder) Record(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = r.now()
	}

	r.mu.Lock()
	r.ring[r.next] = s
	r.next = (r.next + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
	r.mu.Unlock()

	r.logger.Debug("workflow execution recorded",
		zap.String("workflow_id", s.WorkflowID),
		zap.String("execution_id", s.ExecutionID),
		zap.String("status", s.Status),
		zap.Duration("duration", s.Duration),
		zap.Int("steps", s.StepCount),
		zap.Int("failed_steps", s.FailedStepCount),
		zap.String("error_code", s.ErrorCode),
	)
}

// Len returns the number of retained samples.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Samples returns retained samples oldest first, optionally filtered.
func (r *Recorder) Samples(since time.Time, workflowID string) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Sample, 0, r.size)
	start := (r.next - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		s := r.ring[(start+i)%r.capacity]
		if s.Timestamp.Before(since) {
			continue
		}
		if workflowID != "" && s.WorkflowID != workflowID {
			continue
		}
		out = append(out, s)
	}
	return out
}

// WorkflowMetrics aggregates a workflow's samples over the trailing window.
func (r *Recorder) WorkflowMetrics(workflowID string, window time.Duration) WorkflowMetrics {
	if window <= 0 {
		window = DefaultWindow
	}
	return aggregate(workflowID, r.Samples(r.now().Add(-window), workflowID))
}

// AllWorkflowMetrics aggregates every workflow seen in the window, sorted by id.
func (r *Recorder) AllWorkflowMetrics(window time.Duration) []WorkflowMetrics {
	if window <= 0 {
		window = DefaultWindow
	}
	grouped := make(map[string][]Sample)
	for _, s := range r.Samples(r.now().Add(-window), "") {
		grouped[s.WorkflowID] = append(grouped[s.WorkflowID], s)
	}

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]WorkflowMetrics, 0, len(ids))
	for _, id := range ids {
		out = append(out, aggregate(id, grouped[id]))
	}
	return out
}

// OverallHealth evaluates alert thresholds over the trailing window.
func (r *Recorder) OverallHealth(window time.Duration) Health {
	if window <= 0 {
		window = DefaultWindow
	}
	samples := r.Samples(r.now().Add(-window), "")
	if len(samples) == 0 {
		return Health{Healthy: true, SuccessRate: 100, Alerts: []string{}}
	}

	m := aggregate("", samples)
	h := Health{
		TotalExecutions: m.TotalExecutions,
		SuccessRate:     float64(m.SuccessfulExecutions) * 100 / float64(m.TotalExecutions),
		AverageDuration: m.AverageDuration,
		ErrorRate:       m.ErrorRate,
		Alerts:          []string{},
	}

	if h.ErrorRate > errorRateAlertPercent {
		h.Alerts = append(h.Alerts, fmt.Sprintf("High error rate: %.2f%%", h.ErrorRate))
	}
	if h.AverageDuration > r.slowThreshold {
		h.Alerts = append(h.Alerts, fmt.Sprintf("Slow average execution time: %.2fs", h.AverageDuration.Seconds()))
	}
	if h.SuccessRate < successRateAlertPercent {
		h.Alerts = append(h.Alerts, fmt.Sprintf("Low success rate: %.2f%%", h.SuccessRate))
	}
	h.Healthy = len(h.Alerts) == 0
	return h
}

// ClearOlderThan drops samples older than age and returns how many were dropped.
func (r *Recorder) ClearOlderThan(age time.Duration) int {
	cutoff := r.now().Add(-age)
	keep := r.Samples(cutoff, "")

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := r.size - len(keep)
	r.ring = make([]Sample, r.capacity)
	copy(r.ring, keep)
	r.size = len(keep)
	r.next = r.size % r.capacity
	return dropped
}

func aggregate(workflowID string, samples []Sample) WorkflowMetrics {
	m := WorkflowMetrics{WorkflowID: workflowID, TotalExecutions: len(samples)}
	if len(samples) == 0 {
		return m
	}

	var totalDuration time.Duration
	totalSteps := 0
	errorCounts := make(map[string]int)
	for _, s := range samples {
		if s.Succeeded() {
			m.SuccessfulExecutions++
		} else {
			m.FailedExecutions++
		}
		totalDuration += s.Duration
		totalSteps += s.StepCount
		if s.ErrorCode != "" {
			errorCounts[s.ErrorCode]++
		}
	}

	n := len(samples)
	m.AverageDuration = totalDuration / time.Duration(n)
	m.AverageStepCount = float64(totalSteps) / float64(n)
	m.ErrorRate = float64(m.FailedExecutions) * 100 / float64(n)

	best := 0
	for code, c := range errorCounts {
		if c > best || (c == best && code < m.MostCommonError) {
			best = c
			m.MostCommonError = code
		}
	}
	return m
}
