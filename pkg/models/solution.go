package models

import (
	"time"

	"github.com/google/uuid"
)

// SolutionStatus is the lifecycle state of a solution. It is the single
// source of truth for which operations are legal on the record.
type SolutionStatus string

const (
	SolutionStatusDraft              SolutionStatus = "draft"
	SolutionStatusInProgress         SolutionStatus = "in_progress"
	SolutionStatusRequirementReady   SolutionStatus = "requirement_ready"
	SolutionStatusGeneratingSolution SolutionStatus = "generating_solution"
	SolutionStatusSolutionReady      SolutionStatus = "solution_ready"
	SolutionStatusGenerationFailed   SolutionStatus = "generation_failed"
	SolutionStatusApproved           SolutionStatus = "approved"
	SolutionStatusCompleted          SolutionStatus = "completed"
	SolutionStatusRejected           SolutionStatus = "rejected"
)

// CanPublish reports whether a generation run may be started from this status.
// Republish is allowed from the terminal generation states so a user can
// regenerate after success or failure.
func (s SolutionStatus) CanPublish() bool {
	switch s {
	case SolutionStatusRequirementReady, SolutionStatusSolutionReady, SolutionStatusGenerationFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further lifecycle transitions are expected.
func (s SolutionStatus) IsTerminal() bool {
	return s == SolutionStatusCompleted || s == SolutionStatusRejected
}

// validTransitions encodes the lifecycle graph. rejected is reachable from
// any approval-pending state and is handled separately in CanTransitionTo.
var validTransitions = map[SolutionStatus][]SolutionStatus{
	SolutionStatusDraft:              {SolutionStatusInProgress, SolutionStatusRequirementReady},
	SolutionStatusInProgress:         {SolutionStatusRequirementReady},
	SolutionStatusRequirementReady:   {SolutionStatusGeneratingSolution, SolutionStatusApproved},
	SolutionStatusGeneratingSolution: {SolutionStatusSolutionReady, SolutionStatusGenerationFailed},
	SolutionStatusSolutionReady:      {SolutionStatusGeneratingSolution, SolutionStatusCompleted},
	SolutionStatusGenerationFailed:   {SolutionStatusGeneratingSolution},
	SolutionStatusApproved:           {SolutionStatusGeneratingSolution},
}

// CanTransitionTo reports whether moving from s to target follows the
// lifecycle graph.
func (s SolutionStatus) CanTransitionTo(target SolutionStatus) bool {
	if target == SolutionStatusRejected {
		// Rejection is a side branch from any non-terminal state.
		return !s.IsTerminal()
	}
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Solution is the durable artifact progressing from gathered requirements to
// an AI-generated technical document. Requirements are written by the
// requirement-gathering flow; technical_solution is only ever written by the
// generation pipeline.
type Solution struct {
	ID                    uuid.UUID         `json:"id"`
	ConversationID        uuid.UUID         `json:"conversation_id"`
	ThreadID              string            `json:"thread_id"`
	UserID                string            `json:"user_id"`
	ProjectID             *uuid.UUID        `json:"project_id,omitempty"`
	Title                 string            `json:"title"`
	Description           string            `json:"description,omitempty"`
	Requirements          *string           `json:"requirements,omitempty"`
	TechnicalSolution     *string           `json:"technical_solution,omitempty"`
	Metadata              *SolutionMetadata `json:"metadata,omitempty"`
	Status                SolutionStatus    `json:"status"`
	RequirementApprovedAt *time.Time        `json:"requirement_approved_at,omitempty"`
	SolutionApprovedAt    *time.Time        `json:"solution_approved_at,omitempty"`
	GeneratedAt           *time.Time        `json:"generated_at,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// HasRequirements reports whether the requirements text is present and
// non-empty. Publishing is gated on this.
func (s *Solution) HasRequirements() bool {
	return s.Requirements != nil && *s.Requirements != ""
}

// HasTechnicalSolution reports whether a generated document is present.
func (s *Solution) HasTechnicalSolution() bool {
	return s.TechnicalSolution != nil && *s.TechnicalSolution != ""
}

// OwnedBy reports whether the given user owns this solution.
func (s *Solution) OwnedBy(userID string) bool {
	return s.UserID == userID
}

// SolutionMetadata holds generation provenance and knowledge-capture
// bookkeeping. Stored as JSONB; the keys are enumerated here rather than
// kept in an untyped map so merge semantics stay well-defined.
type SolutionMetadata struct {
	ModelUsed   string `json:"model_used,omitempty"`
	WordCount   int    `json:"word_count,omitempty"`
	CharCount   int    `json:"char_count,omitempty"`
	IsRepublish bool   `json:"is_republish,omitempty"`

	// GenerationError records the last failure summary so a polling client
	// can render it after the ephemeral progress record expires.
	GenerationError string `json:"generation_error,omitempty"`

	// LearnedKnowledgeCapturedAt, once set, is never cleared implicitly.
	// Capture is at-most-once per solution unless explicitly forced.
	LearnedKnowledgeCapturedAt *time.Time       `json:"learned_knowledge_captured_at,omitempty"`
	LearnedKnowledgeIDs        map[string]int64 `json:"learned_knowledge_ids,omitempty"`
}

// Merge overlays other onto m, returning the merged metadata. Zero values in
// other leave the existing value in place, so capture bookkeeping survives a
// republish and generation provenance survives a capture.
func (m *SolutionMetadata) Merge(other *SolutionMetadata) *SolutionMetadata {
	if m == nil {
		m = &SolutionMetadata{}
	}
	if other == nil {
		return m
	}
	merged := *m
	if other.ModelUsed != "" {
		merged.ModelUsed = other.ModelUsed
	}
	if other.WordCount != 0 {
		merged.WordCount = other.WordCount
	}
	if other.CharCount != 0 {
		merged.CharCount = other.CharCount
	}
	if other.ModelUsed != "" || other.WordCount != 0 || other.CharCount != 0 {
		// A fresh generation run owns the republish flag and clears any
		// stale failure summary.
		merged.IsRepublish = other.IsRepublish
		merged.GenerationError = ""
	}
	if other.GenerationError != "" {
		merged.GenerationError = other.GenerationError
	}
	if other.LearnedKnowledgeCapturedAt != nil {
		merged.LearnedKnowledgeCapturedAt = other.LearnedKnowledgeCapturedAt
	}
	if len(other.LearnedKnowledgeIDs) > 0 {
		if merged.LearnedKnowledgeIDs == nil {
			merged.LearnedKnowledgeIDs = make(map[string]int64, len(other.LearnedKnowledgeIDs))
		} else {
			ids := make(map[string]int64, len(merged.LearnedKnowledgeIDs)+len(other.LearnedKnowledgeIDs))
			for k, v := range merged.LearnedKnowledgeIDs {
				ids[k] = v
			}
			merged.LearnedKnowledgeIDs = ids
		}
		for k, v := range other.LearnedKnowledgeIDs {
			merged.LearnedKnowledgeIDs[k] = v
		}
	}
	return &merged
}

// KnowledgeCaptured reports whether this solution's approved content has
// already been forwarded to the learning service.
func (m *SolutionMetadata) KnowledgeCaptured() bool {
	return m != nil && m.LearnedKnowledgeCapturedAt != nil
}
