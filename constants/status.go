package constants

import "fmt"

// JobState is the lifecycle state of a recognition job.
type JobState int32

// Stable values. Zero is idle so a fresh uploader needs no initialization.
const (
	JobIdle         JobState = iota // no job has run yet
	JobInitializing                 // accepted, engine starting
	JobRecognizing                  // engine is recognizing the payload
	JobComplete                     // terminal success
	JobFailed                       // terminal failure
)

func (s JobState) String() string {
	switch s {
	case JobIdle:
		return "idle"
	case JobInitializing:
		return "initializing"
	case JobRecognizing:
		return "recognizing"
	case JobComplete:
		return "complete"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s JobState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *JobState) UnmarshalText(b []byte) error {
	for st := JobIdle; st <= JobFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown job state %q", b)
}

// Running reports whether a job in this state still holds the uploader.
func (s JobState) Running() bool {
	return s == JobInitializing || s == JobRecognizing
}

// Terminal reports whether the job has finished, successfully or not.
func (s JobState) Terminal() bool {
	return s == JobComplete || s == JobFailed
}

// ErrorFallbackText replaces the recognized text whenever a job fails.
const ErrorFallbackText = "Error processing image. Please try again."
