package tracking

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/scrape"
)

// Stage names the step of a tracking run that failed.
type Stage string

// Tracking run stages.
const (
	StageLoad       Stage = "load"
	StageIdentity   Stage = "identity"
	StageFetch      Stage = Stage(scrape.StageFetch)
	StageExtract    Stage = Stage(scrape.StageExtract)
	StageValidation Stage = Stage(scrape.StageValidation)
	StageAppend     Stage = "append"
)

// stageOK labels successful runs in metrics.
const stageOK = "ok"

// Failure is the result of a tracking run that did not append a record.
// History is never modified when a Failure is returned.
type Failure struct {
	ProductID string
	Stage     Stage
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("tracking product %s failed at %s: %v", f.ProductID, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
