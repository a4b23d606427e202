package model

import "fmt"

// RunSummary is what one pipeline run reports to whoever triggered it.
// On a fatal condition Success is false and Error explains why; counts then
// reflect whatever happened before the run stopped.
//
// Processed counts messages that reached the oracle and were consumed.
// Messages with no usable text are consumed too but counted in Empty.
type RunSummary struct {
	Success         bool   `json:"success"`
	RunID           string `json:"runId,omitempty"`
	Found           int    `json:"found"`
	Processed       int    `json:"processed"`
	Empty           int    `json:"empty"`
	Failed          int    `json:"failed"`
	RecordsAppended int    `json:"recordsAppended"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Describe fills Message with the one-line human summary.
func (s *RunSummary) Describe() {
	switch {
	case s.Error != "":
		s.Message = fmt.Sprintf("Run failed after processing %d/%d emails: %s", s.Processed, s.Found, s.Error)
	case s.Found == 0:
		s.Message = "No new emails to process"
	default:
		s.Message = fmt.Sprintf("Processed %d/%d emails and added %d jobs.", s.Processed, s.Found, s.RecordsAppended)
	}
}
