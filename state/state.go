// Package state tracks the state of the concatenation jobs.
package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const maxErrorsLog = 20

// State represents the state of the program.
type State struct {
	Jobs map[string]*JobStatus `json:"jobs"`

	mu sync.RWMutex
}

// JobStatus represents the state of a job.
type JobStatus struct {
	State   JobState          `json:"state"`
	Updated time.Time         `json:"updated"`
	Extra   map[string]any    `json:"extra,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
	Errors  []JobError        `json:"errors_log"`
}

// JobError represents an error during a job run.
type JobError struct {
	Timestamp string `json:"timestamp"`
	Error     string `json:"error"`
}

// JobState represents the phase of a job.
type JobState int

const (
	// JobStateUnspecified is used when the state is unspecified.
	JobStateUnspecified JobState = iota
	// JobStateIdle is used when the job waits for its next run.
	JobStateIdle
	// JobStateScanning is used when the job lists the candidates.
	JobStateScanning
	// JobStateConcatenating is used when ffmpeg is running.
	JobStateConcatenating
	// JobStateCleaning is used when the sources are being deleted.
	JobStateCleaning
	// JobStateFinished is used when the last run succeeded.
	JobStateFinished
	// JobStateFailed is used when the last run failed.
	JobStateFailed
)

// String returns a string representation of a JobState.
func (s JobState) String() string {
	switch s {
	case JobStateIdle:
		return "IDLE"
	case JobStateScanning:
		return "SCANNING"
	case JobStateConcatenating:
		return "CONCATENATING"
	case JobStateCleaning:
		return "CLEANING"
	case JobStateFinished:
		return "FINISHED"
	case JobStateFailed:
		return "FAILED"
	}
	return "UNSPECIFIED"
}

// JobStateFromString returns a JobState from a string.
func JobStateFromString(s string) JobState {
	switch s {
	default:
		return JobStateUnspecified
	case "IDLE":
		return JobStateIdle
	case "SCANNING":
		return JobStateScanning
	case "CONCATENATING":
		return JobStateConcatenating
	case "CLEANING":
		return JobStateCleaning
	case "FINISHED":
		return JobStateFinished
	case "FAILED":
		return JobStateFailed
	}
}

// MarshalJSON marshals a JobState into a string.
func (s JobState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON unmarshals a string into a JobState.
func (s *JobState) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	*s = JobStateFromString(str)
	return nil
}

// DefaultState is the default state.
var DefaultState = New()

// New creates an empty State.
func New() *State {
	return &State{
		Jobs: make(map[string]*JobStatus),
	}
}

// GetJobState returns the state of a job.
func (s *State) GetJobState(name string) JobState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if j, ok := s.Jobs[name]; ok {
		return j.State
	}
	return JobStateUnspecified
}

type setJobStateOptions struct {
	labels map[string]string
	extra  map[string]any
}

// SetJobStateOption represents options for SetJobState.
type SetJobStateOption func(*setJobStateOptions)

// WithLabels sets labels for a job.
func WithLabels(labels map[string]string) SetJobStateOption {
	return func(o *setJobStateOptions) {
		o.labels = labels
	}
}

// WithExtra sets extra data for a job.
func WithExtra(extra map[string]any) SetJobStateOption {
	return func(o *setJobStateOptions) {
		o.extra = extra
	}
}

func (s *State) getOrCreate(name string) *JobStatus {
	if _, ok := s.Jobs[name]; !ok {
		s.Jobs[name] = &JobStatus{
			Errors: make([]JobError, 0),
		}
	}
	return s.Jobs[name]
}

// SetJobState sets the state of a job.
func (s *State) SetJobState(
	name string,
	state JobState,
	opts ...SetJobStateOption,
) {
	o := &setJobStateOptions{}
	for _, opt := range opts {
		opt(o)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.getOrCreate(name)
	j.State = state
	j.Updated = time.Now().UTC()
	if o.extra != nil {
		j.Extra = o.extra
	}
	if o.labels != nil {
		j.Labels = o.labels
	}
	setStateMetrics(context.Background(), name, state, j.Labels)
}

// SetJobError appends an error to the log of a job.
//
// Only the latest errors are kept.
func (s *State) SetJobError(name string, err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.getOrCreate(name)
	j.Errors = append(j.Errors, JobError{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Error:     err.Error(),
	})
	if len(j.Errors) > maxErrorsLog {
		j.Errors = j.Errors[len(j.Errors)-maxErrorsLog:]
	}
}

// Remove forgets a job, e.g. when it disappears from the configuration.
func (s *State) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Jobs, name)
}

// MarshalJSON marshals a consistent snapshot of the state.
func (s *State) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(struct {
		Jobs map[string]*JobStatus `json:"jobs"`
	}{
		Jobs: s.Jobs,
	})
}
