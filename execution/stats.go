package execution

import (
	"github.com/google/uuid"
	"mit.edu/dsg/flowdb/planner"
)

// NodeStats counts what one operator emitted during a run.
type NodeStats struct {
	Node    uuid.UUID
	Tag     planner.Tag
	Name    string
	Batches int64
	Rows    int64
}
