package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/learning"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/repositories"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services/workqueue"
)

// captureMaxAttempts bounds retries of a capture run.
const captureMaxAttempts = 3

// CaptureScope selects which artifacts a capture run forwards.
type CaptureScope string

const (
	CaptureScopeAll          CaptureScope = "all"
	CaptureScopeRequirements CaptureScope = "requirements"
	CaptureScopeTechnical    CaptureScope = "technical"
)

// Artifact type keys used in metadata.learned_knowledge_ids.
const (
	artifactRequirements = "requirements"
	artifactTechnical    = "technical_solution"
)

// KnowledgeCaptureTask forwards a solution's approved content to the
// learning service so future generations can draw on it. It does not check
// whether capture already happened; that responsibility belongs to the
// trigger (approval dispatches once per approval event, the backfill sweep
// filters on the capture timestamp).
type KnowledgeCaptureTask struct {
	solutionID uuid.UUID
	scope      CaptureScope

	solutions repositories.SolutionRepository
	learning  LearningClient
	logger    *zap.Logger
}

// NewKnowledgeCaptureTask creates a capture task for the given solution.
func NewKnowledgeCaptureTask(
	solutionID uuid.UUID,
	scope CaptureScope,
	solutions repositories.SolutionRepository,
	learningClient LearningClient,
	logger *zap.Logger,
) *KnowledgeCaptureTask {
	return &KnowledgeCaptureTask{
		solutionID: solutionID,
		scope:      scope,
		solutions:  solutions,
		learning:   learningClient,
		logger:     logger.Named("knowledge-capture"),
	}
}

func (t *KnowledgeCaptureTask) ID() string       { return t.solutionID.String() }
func (t *KnowledgeCaptureTask) Name() string     { return "knowledge_capture" }
func (t *KnowledgeCaptureTask) MaxAttempts() int { return captureMaxAttempts }

// Execute runs one capture attempt. With a narrow scope a submission failure
// fails the task; with scope all the task fails only when nothing succeeded.
func (t *KnowledgeCaptureTask) Execute(ctx context.Context) error {
	solution, err := t.solutions.GetByID(ctx, t.solutionID)
	if err != nil {
		return nonRetryable(fmt.Errorf("load solution: %w", err))
	}

	wantRequirements := t.scope == CaptureScopeAll || t.scope == CaptureScopeRequirements
	wantTechnical := t.scope == CaptureScopeAll || t.scope == CaptureScopeTechnical

	captureRequirements := wantRequirements && solution.HasRequirements()
	captureTechnical := wantTechnical && solution.HasTechnicalSolution()

	if !captureRequirements && !captureTechnical {
		t.logger.Info("nothing to capture",
			zap.String("solution_id", t.solutionID.String()),
			zap.String("scope", string(t.scope)))
		return nil
	}

	ids := make(map[string]int64)
	var firstErr error

	if captureRequirements {
		id, err := t.learning.Capture(ctx, t.buildRecord(solution,
			learning.KnowledgeTypeQAPair,
			fmt.Sprintf("Requirements for: %s", solution.Title),
			*solution.Requirements))
		if err != nil {
			firstErr = fmt.Errorf("capture requirements: %w", err)
			t.logger.Warn("requirements capture failed",
				zap.String("solution_id", t.solutionID.String()),
				zap.Error(err))
		} else {
			ids[artifactRequirements] = id
		}
	}

	if captureTechnical {
		id, err := t.learning.Capture(ctx, t.buildRecord(solution,
			learning.KnowledgeTypeSolutionPattern,
			fmt.Sprintf("Technical solution for: %s", solution.Title),
			*solution.TechnicalSolution))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("capture technical solution: %w", err)
			}
			t.logger.Warn("technical solution capture failed",
				zap.String("solution_id", t.solutionID.String()),
				zap.Error(err))
		} else {
			ids[artifactTechnical] = id
		}
	}

	if len(ids) == 0 {
		return firstErr
	}
	if firstErr != nil && t.scope != CaptureScopeAll {
		return firstErr
	}

	capturedAt := now()
	if err := t.solutions.MergeMetadata(ctx, t.solutionID, &models.SolutionMetadata{
		LearnedKnowledgeCapturedAt: &capturedAt,
		LearnedKnowledgeIDs:        ids,
	}); err != nil {
		return fmt.Errorf("record capture in metadata: %w", err)
	}

	t.logger.Info("knowledge captured",
		zap.String("solution_id", t.solutionID.String()),
		zap.String("scope", string(t.scope)),
		zap.Int("artifacts", len(ids)))

	return nil
}

// buildRecord assembles one learning-service submission. Confidence is
// maximal: this is human-approved content, not inferred.
func (t *KnowledgeCaptureTask) buildRecord(solution *models.Solution, knowledgeType learning.KnowledgeType, question, answer string) *learning.Record {
	rec := &learning.Record{
		AgentTarget:          agentTargetFor(knowledgeType),
		KnowledgeType:        knowledgeType,
		SourceThreadID:       solution.ThreadID,
		SourceConversationID: solution.ConversationID.String(),
		Question:             question,
		Answer:               answer,
		Context: map[string]string{
			"source": "solution_approval",
		},
		ConfidenceScore: 1.0,
	}
	if solution.ProjectID != nil {
		rec.Context["project_id"] = solution.ProjectID.String()
	}
	return rec
}

// agentTargetFor names the downstream consumer each artifact type benefits.
func agentTargetFor(knowledgeType learning.KnowledgeType) string {
	if knowledgeType == learning.KnowledgeTypeSolutionPattern {
		return "solution_agent"
	}
	return "requirements_agent"
}

// Ensure KnowledgeCaptureTask satisfies the queue contract at compile time.
var _ workqueue.Task = (*KnowledgeCaptureTask)(nil)
