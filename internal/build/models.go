// Package build runs the full playable pipeline as async jobs: a bounded
// queue, a worker pool, and snapshot-based read access to job state.
package build

import (
	"sync"
	"time"

	"github.com/p-blackswan/playable-forge/internal/analysis"
	"github.com/p-blackswan/playable-forge/internal/assemble"
	"github.com/p-blackswan/playable-forge/internal/template"
)

// Status is the lifecycle state of a build.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Stage names the pipeline step a running build is in.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageForging    Stage = "forging"
	StageOptimizing Stage = "optimizing"
	StageAssembling Stage = "assembling"
	StageDone       Stage = "done"
)

// Request is everything needed to build one playable.
type Request struct {
	Analysis analysis.GameAnalysis `json:"analysis"`
	StyleID  string                `json:"style_id"`
	Config   assemble.Config       `json:"config"`
	CallerID string                `json:"caller_id,omitempty"`
}

// AssetSummary is the per-slot outcome recorded on the result.
type AssetSummary struct {
	SlotKey  string `json:"slot_key"`
	Valid    bool   `json:"valid"`
	Attempts int    `json:"attempts"`
	ImageID  string `json:"image_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the output of one completed build.
type Result struct {
	SessionID            string                    `json:"session_id"`
	Mechanic             template.Mechanic         `json:"mechanic"`
	ReferenceImageID     string                    `json:"reference_image_id,omitempty"`
	StartingBalance      int                       `json:"starting_balance"`
	Assets               []AssetSummary            `json:"assets"`
	ValidAssets          int                       `json:"valid_assets"`
	Document             string                    `json:"-"` // served via export, not listed
	SizeBytes            int                       `json:"size_bytes"`
	Valid                bool                      `json:"valid"`
	ValidationErrors     []string                  `json:"validation_errors,omitempty"`
	FallbackSlots        []string                  `json:"fallback_slots,omitempty"`
	NetworkCompatibility map[assemble.Network]bool `json:"network_compatibility"`
}

// Build is one async pipeline job.
type Build struct {
	mu          sync.RWMutex
	ID          string     `json:"id"`
	Request     Request    `json:"request"`
	Status      Status     `json:"status"`
	Stage       Stage      `json:"stage"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Snapshot returns a copy safe to read without holding locks.
func (b *Build) Snapshot() Build {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Build{
		ID:          b.ID,
		Request:     b.Request,
		Status:      b.Status,
		Stage:       b.Stage,
		Result:      b.Result,
		Error:       b.Error,
		CreatedAt:   b.CreatedAt,
		StartedAt:   b.StartedAt,
		CompletedAt: b.CompletedAt,
	}
}

// ListQuery filters and paginates build listings.
type ListQuery struct {
	Status   string `query:"status"`
	Mechanic string `query:"mechanic"`
	CallerID string `query:"caller_id"`
	Limit    int    `query:"limit"`
	Offset   int    `query:"offset"`
}

// Stats summarizes the engine's history.
type Stats struct {
	TotalBuilds   int            `json:"total_builds"`
	ByStatus      map[string]int `json:"by_status"`
	ByMechanic    map[string]int `json:"by_mechanic"`
	AvgDurationMs int64          `json:"avg_duration_ms"`
}
