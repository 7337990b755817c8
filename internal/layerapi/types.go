package layerapi

// JobStatus is the local view of a generation job's lifecycle.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status will never change again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// backendStatus maps the backend's inference status vocabulary onto ours.
// The backend reports IN_PROGRESS, COMPLETE, FAILED, CANCELLED, DELETED.
func backendStatus(s string) JobStatus {
	switch s {
	case "IN_PROGRESS":
		return StatusProcessing
	case "COMPLETE":
		return StatusCompleted
	case "FAILED", "CANCELLED", "DELETED":
		return StatusFailed
	case "PENDING":
		return StatusPending
	}
	return StatusProcessing
}

// Generation is the state of one generation job.
type Generation struct {
	JobID     string
	Status    JobStatus
	ImageID   string
	ImageURL  string
	ErrorCode string
	Prompt    string
}

// Workspace is the workspace entitlement snapshot.
type Workspace struct {
	WorkspaceID string
	Balance     int
	HasAccess   bool
}

// StyleStatusReady is the backend status of a style that can generate.
const StyleStatusReady = "COMPLETE"

// Style is a pre-trained generation style.
type Style struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Type   string `json:"type,omitempty"`
}

// Ready reports whether the style can be used for generation.
func (s Style) Ready() bool {
	return s.Status == StyleStatusReady || s.Status == "READY"
}

// StyleRecipe is the input for training a new style.
type StyleRecipe struct {
	Name             string   `json:"name"`
	Prefix           []string `json:"prefix,omitempty"`
	Technical        []string `json:"technical,omitempty"`
	Negative         []string `json:"negative,omitempty"`
	PalettePrimary   string   `json:"palette_primary,omitempty"`
	PaletteAccent    string   `json:"palette_accent,omitempty"`
	ReferenceImageID string   `json:"reference_image_id,omitempty"`
}
