// Package api exposes the forge service over HTTP: async build management,
// synchronous forge and assemble operations, and read-only catalog endpoints.
package api

import (
	"github.com/p-blackswan/playable-forge/internal/analysis"
	"github.com/p-blackswan/playable-forge/internal/assemble"
	"github.com/p-blackswan/playable-forge/internal/build"
)

// --- Request DTOs ---

// AssembleAssetPayload is one pre-generated asset supplied to the assemble
// endpoint as a data URI.
type AssembleAssetPayload struct {
	SlotKey string `json:"slot_key"`
	DataURI string `json:"data_uri"`
	Valid   bool   `json:"valid"`
}

// AssembleRequest is the payload for POST /api/v1/assemble.
type AssembleRequest struct {
	Mechanic string                 `json:"mechanic"`
	Assets   []AssembleAssetPayload `json:"assets"`
	Config   assemble.Config        `json:"config"`
}

// ForgeRequest is the payload for POST /api/v1/forge.
type ForgeRequest struct {
	Analysis analysis.GameAnalysis `json:"analysis"`
	StyleID  string                `json:"style_id"`
}

// --- Response DTOs ---

// BuildResponse wraps a build for API responses.
type BuildResponse struct {
	Build *build.Build `json:"build"`
}

// BuildListResponse wraps a list of builds.
type BuildListResponse struct {
	Builds []*build.Build `json:"builds"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// AssembleResponse is the verdict for a synchronous assembly.
type AssembleResponse struct {
	Mechanic             string                    `json:"mechanic"`
	SizeBytes            int                       `json:"size_bytes"`
	Valid                bool                      `json:"valid"`
	ValidationErrors     []string                  `json:"validation_errors,omitempty"`
	FallbackSlots        []string                  `json:"fallback_slots,omitempty"`
	NetworkCompatibility map[assemble.Network]bool `json:"network_compatibility"`
	Document             string                    `json:"document,omitempty"`
}

// ForgeAssetResponse is one slot outcome from a synchronous forge.
type ForgeAssetResponse struct {
	SlotKey  string `json:"slot_key"`
	Valid    bool   `json:"valid"`
	Attempts int    `json:"attempts"`
	ImageID  string `json:"image_id,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ForgeResponse summarizes a forge session.
type ForgeResponse struct {
	SessionID        string               `json:"session_id"`
	StyleID          string               `json:"style_id"`
	ReferenceImageID string               `json:"reference_image_id,omitempty"`
	StartingBalance  int                  `json:"starting_balance"`
	ValidAssets      int                  `json:"valid_assets"`
	Assets           []ForgeAssetResponse `json:"assets"`
}

// SlotInfo describes one template slot.
type SlotInfo struct {
	Key          string `json:"key"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Required     bool   `json:"required"`
	Transparency bool   `json:"transparency"`
}

// ParamInfo describes one configurable template parameter.
type ParamInfo struct {
	Key         string  `json:"key"`
	Type        string  `json:"type"`
	Default     any     `json:"default"`
	Min         float64 `json:"min,omitempty"`
	Max         float64 `json:"max,omitempty"`
	Description string  `json:"description,omitempty"`
}

// TemplateInfo describes one registered template.
type TemplateInfo struct {
	Mechanic    string      `json:"mechanic"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Slots       []SlotInfo  `json:"slots"`
	Params      []ParamInfo `json:"params"`
	Examples    []string    `json:"examples,omitempty"`
}

// TemplateListResponse wraps the template catalog.
type TemplateListResponse struct {
	Templates []TemplateInfo `json:"templates"`
}

// StyleResponse is one generation style.
type StyleResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// StyleListResponse wraps the style catalog.
type StyleListResponse struct {
	Styles []StyleResponse `json:"styles"`
}

// WorkspaceResponse is the workspace credit state.
type WorkspaceResponse struct {
	WorkspaceID string `json:"workspace_id"`
	Balance     int    `json:"balance"`
	HasAccess   bool   `json:"has_access"`
}

// NetworkListResponse wraps the supported network specs.
type NetworkListResponse struct {
	Networks []assemble.NetworkSpec `json:"networks"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
