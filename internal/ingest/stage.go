package ingest

import "fmt"

// Stage is a step of the ingestion state machine.
type Stage int

const (
	StageReceived Stage = iota
	StageNormalized
	StageFiltered
	StageInferred
	StageProjected
	StageEmbedded
	StageUpserted
	StageDone
)

var stageNames = [...]string{
	StageReceived:   "received",
	StageNormalized: "normalized",
	StageFiltered:   "filtered",
	StageInferred:   "inferred",
	StageProjected:  "projected",
	StageEmbedded:   "embedded",
	StageUpserted:   "upserted",
	StageDone:       "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError is the terminal Failed state: the batch stopped while moving
// into Stage and nothing from it was committed.
type StageError struct {
	BatchID string
	Stage   Stage
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("batch %s failed at %s: %v", e.BatchID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
