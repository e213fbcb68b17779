package domain

// Note is the enriched result of one pipeline run, handed to the
// note store and then discarded.
type Note struct {
	Body     string
	Category string
	Title    string // truncated prefix of Body, bounded by the store's title field
}

// Stage identifies the pipeline stage an outcome refers to.
type Stage string

const (
	StageTranscription  Stage = "transcription"
	StageRefinement     Stage = "refinement"
	StageClassification Stage = "classification"
	StagePersistence    Stage = "persistence"
)

// Cause names why a pipeline run failed.
type Cause string

const (
	CauseEmptyContent Cause = "empty-content"
	CauseStoreError   Cause = "store-error"
)

// Outcome is the terminal result of one pipeline run. Either Saved is
// true and Category is set, or Stage/Cause describe the failure.
type Outcome struct {
	Saved    bool
	Category string
	Stage    Stage
	Cause    Cause
}

func SavedOutcome(category string) Outcome {
	return Outcome{Saved: true, Category: category}
}

func FailedOutcome(stage Stage, cause Cause) Outcome {
	return Outcome{Stage: stage, Cause: cause}
}
