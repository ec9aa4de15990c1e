// Package repositories provides PostgreSQL data access for ideaforge-engine.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/database"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
)

// SolutionRepository defines the interface for solution data access.
type SolutionRepository interface {
	// Create inserts a new solution and returns it with generated fields set.
	Create(ctx context.Context, solution *models.Solution) (*models.Solution, error)

	// GetByID retrieves a solution by ID. Returns apperrors.ErrNotFound when
	// no row exists.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Solution, error)

	// ListByUser retrieves all solutions owned by a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*models.Solution, error)

	// UpdateStatus transitions a solution from one status to another. The
	// update is conditional on the current status so concurrent writers
	// cannot race past the lifecycle graph. Returns apperrors.ErrConflict
	// when the row is no longer in the expected status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.SolutionStatus) error

	// SetRequirements replaces the requirements text.
	SetRequirements(ctx context.Context, id uuid.UUID, requirements string) error

	// SetRequirementApproved stamps requirement approval and moves the
	// solution to the given status.
	SetRequirementApproved(ctx context.Context, id uuid.UUID, status models.SolutionStatus, approvedAt time.Time) error

	// SetSolutionApproved stamps solution approval and moves the solution to
	// the given status.
	SetSolutionApproved(ctx context.Context, id uuid.UUID, status models.SolutionStatus, approvedAt time.Time) error

	// SaveGeneratedSolution persists a completed generation run: the document,
	// merged metadata, generated_at, and the new status, in one write.
	SaveGeneratedSolution(ctx context.Context, id uuid.UUID, document string, meta *models.SolutionMetadata, status models.SolutionStatus) error

	// MergeMetadata overlays the given metadata onto the stored metadata.
	// The read-modify-write runs inside a row lock.
	MergeMetadata(ctx context.Context, id uuid.UUID, meta *models.SolutionMetadata) error

	// ListUncaptured retrieves approved or completed solutions whose content
	// has not yet been forwarded to the learning service.
	ListUncaptured(ctx context.Context, limit int) ([]*models.Solution, error)
}

// solutionRepository implements SolutionRepository using pgx.
type solutionRepository struct {
	db *database.DB
}

// NewSolutionRepository creates a new solution repository.
func NewSolutionRepository(db *database.DB) SolutionRepository {
	return &solutionRepository{db: db}
}

const solutionColumns = `id, conversation_id, thread_id, user_id, project_id, title, description,
	requirements, technical_solution, metadata, status,
	requirement_approved_at, solution_approved_at, generated_at, created_at, updated_at`

// Create inserts a new solution.
func (r *solutionRepository) Create(ctx context.Context, solution *models.Solution) (*models.Solution, error) {
	if solution.ID == uuid.Nil {
		solution.ID = uuid.New()
	}
	if solution.Status == "" {
		solution.Status = models.SolutionStatusDraft
	}

	metaJSON, err := marshalMetadata(solution.Metadata)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO solutions (id, conversation_id, thread_id, user_id, project_id, title, description,
			requirements, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + solutionColumns

	row := r.db.QueryRow(ctx, query,
		solution.ID, solution.ConversationID, solution.ThreadID, solution.UserID,
		solution.ProjectID, solution.Title, solution.Description,
		solution.Requirements, metaJSON, solution.Status)

	created, err := scanSolution(row)
	if err != nil {
		return nil, fmt.Errorf("insert solution: %w", err)
	}
	return created, nil
}

// GetByID retrieves a solution by ID.
func (r *solutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Solution, error) {
	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE id = $1`

	solution, err := scanSolution(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("query solution: %w", err)
	}
	return solution, nil
}

// ListByUser retrieves all solutions owned by a user, newest first.
func (r *solutionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Solution, error) {
	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query solutions: %w", err)
	}
	defer rows.Close()

	return scanSolutions(rows)
}

// UpdateStatus transitions a solution conditionally on its current status.
func (r *solutionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.SolutionStatus) error {
	query := `
		UPDATE solutions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	result, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the row is gone or another writer moved it first.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return apperrors.ErrConflict
	}
	return nil
}

// SetRequirements replaces the requirements text.
func (r *solutionRepository) SetRequirements(ctx context.Context, id uuid.UUID, requirements string) error {
	query := `
		UPDATE solutions
		SET requirements = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, requirements)
	if err != nil {
		return fmt.Errorf("update requirements: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetRequirementApproved stamps requirement approval.
func (r *solutionRepository) SetRequirementApproved(ctx context.Context, id uuid.UUID, status models.SolutionStatus, approvedAt time.Time) error {
	query := `
		UPDATE solutions
		SET status = $2, requirement_approved_at = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, approvedAt)
	if err != nil {
		return fmt.Errorf("update requirement approval: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetSolutionApproved stamps solution approval.
func (r *solutionRepository) SetSolutionApproved(ctx context.Context, id uuid.UUID, status models.SolutionStatus, approvedAt time.Time) error {
	query := `
		UPDATE solutions
		SET status = $2, solution_approved_at = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, approvedAt)
	if err != nil {
		return fmt.Errorf("update solution approval: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SaveGeneratedSolution persists a completed generation run in one write.
func (r *solutionRepository) SaveGeneratedSolution(ctx context.Context, id uuid.UUID, document string, meta *models.SolutionMetadata, status models.SolutionStatus) error {
	return r.withRowLock(ctx, id, func(tx pgx.Tx, current *models.Solution) error {
		merged := current.Metadata.Merge(meta)
		metaJSON, err := marshalMetadata(merged)
		if err != nil {
			return err
		}

		query := `
			UPDATE solutions
			SET technical_solution = $2, metadata = $3, status = $4,
				generated_at = NOW(), updated_at = NOW()
			WHERE id = $1`

		_, err = tx.Exec(ctx, query, id, document, metaJSON, status)
		if err != nil {
			return fmt.Errorf("save generated solution: %w", err)
		}
		return nil
	})
}

// MergeMetadata overlays the given metadata onto the stored metadata.
func (r *solutionRepository) MergeMetadata(ctx context.Context, id uuid.UUID, meta *models.SolutionMetadata) error {
	return r.withRowLock(ctx, id, func(tx pgx.Tx, current *models.Solution) error {
		merged := current.Metadata.Merge(meta)
		metaJSON, err := marshalMetadata(merged)
		if err != nil {
			return err
		}

		query := `UPDATE solutions SET metadata = $2, updated_at = NOW() WHERE id = $1`

		_, err = tx.Exec(ctx, query, id, metaJSON)
		if err != nil {
			return fmt.Errorf("merge metadata: %w", err)
		}
		return nil
	})
}

// ListUncaptured retrieves approved or completed solutions not yet captured.
func (r *solutionRepository) ListUncaptured(ctx context.Context, limit int) ([]*models.Solution, error) {
	query := `
		SELECT ` + solutionColumns + `
		FROM solutions
		WHERE status IN ($1, $2)
		AND (metadata IS NULL OR metadata->>'learned_knowledge_captured_at' IS NULL)
		ORDER BY updated_at ASC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, models.SolutionStatusApproved, models.SolutionStatusCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("query uncaptured solutions: %w", err)
	}
	defer rows.Close()

	return scanSolutions(rows)
}

// withRowLock runs fn inside a transaction holding a FOR UPDATE lock on the
// solution row.
func (r *solutionRepository) withRowLock(ctx context.Context, id uuid.UUID, fn func(tx pgx.Tx, current *models.Solution) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + solutionColumns + ` FROM solutions WHERE id = $1 FOR UPDATE`

	current, err := scanSolution(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("lock solution row: %w", err)
	}

	if err := fn(tx, current); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func marshalMetadata(meta *models.SolutionMetadata) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSolution(row rowScanner) (*models.Solution, error) {
	var s models.Solution
	var metaJSON []byte

	err := row.Scan(
		&s.ID, &s.ConversationID, &s.ThreadID, &s.UserID, &s.ProjectID,
		&s.Title, &s.Description, &s.Requirements, &s.TechnicalSolution,
		&metaJSON, &s.Status,
		&s.RequirementApprovedAt, &s.SolutionApprovedAt, &s.GeneratedAt,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(metaJSON) > 0 {
		var meta models.SolutionMetadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		s.Metadata = &meta
	}

	return &s, nil
}

func scanSolutions(rows pgx.Rows) ([]*models.Solution, error) {
	var solutions []*models.Solution
	for rows.Next() {
		s, err := scanSolution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan solution: %w", err)
		}
		solutions = append(solutions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solutions: %w", err)
	}
	return solutions, nil
}

// Ensure solutionRepository implements SolutionRepository at compile time.
var _ SolutionRepository = (*solutionRepository)(nil)
