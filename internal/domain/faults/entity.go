package faults

import "time"

// Pipeline phases a fault can be attributed to.
const (
	PhaseGate      = "gate"
	PhaseInference = "inference"
	PhaseParse     = "parse"
	PhasePersist   = "persist"
)

// Fault represents a persisted analysis failure entry
type Fault struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	AnalysisID  string    `json:"analysis_id,omitempty"`
	Phase       string    `json:"phase,omitempty"` // gate | inference | parse | persist
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
