package poller

import (
	"github.com/amishk599/inboxsheet/internal/model"
)

// OutcomeKind is what happened to one message in a run.
type OutcomeKind int

const (
	// ConsumedEmpty: no usable text, consumed without calling the oracle.
	ConsumedEmpty OutcomeKind = iota
	// ConsumedNoRecords: the oracle found nothing (or its output was unusable).
	ConsumedNoRecords
	// ConsumedWithRecords: records were appended and the message consumed.
	ConsumedWithRecords
	// FailedRetryable: left unconsumed, picked up again by the next run.
	FailedRetryable
)

func (k OutcomeKind) String() string {
	switch k {
	case ConsumedEmpty:
		return "consumed_empty"
	case ConsumedNoRecords:
		return "consumed_no_records"
	case ConsumedWithRecords:
		return "consumed_with_records"
	case FailedRetryable:
		return "failed_retryable"
	default:
		return "unknown"
	}
}

// Outcome is the result of processing one message.
//
// Records is the number of rows that reached the sheet. It can be non-zero
// on a FailedRetryable outcome when the append succeeded but consuming the
// message did not.
type Outcome struct {
	Handle  model.MessageHandle
	Kind    OutcomeKind
	Records int
	Reason  string
}

// Consumed reports whether the message was marked consumed.
func (o Outcome) Consumed() bool {
	return o.Kind != FailedRetryable
}

// Summarize folds per-message outcomes into a run summary. found is the
// number of candidates listed, which exceeds len(outcomes) when the run was
// cut short.
func Summarize(found int, outcomes []Outcome) model.RunSummary {
	s := model.RunSummary{Success: true, Found: found}
	for _, o := range outcomes {
		switch o.Kind {
		case ConsumedEmpty:
			s.Empty++
		case ConsumedNoRecords, ConsumedWithRecords:
			s.Processed++
		case FailedRetryable:
			s.Failed++
		}
		s.RecordsAppended += o.Records
	}
	return s
}
