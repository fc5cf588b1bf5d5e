package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/palms-core/internal/application/uow"
	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ListProposalsQuery lists proposals addressed to one professor.
type ListProposalsQuery struct {
	ProfessorID string
	Page        int
	PageSize    int
}

// ListProposalsHandler обрабатывает ListProposalsQuery.
type ListProposalsHandler struct {
	reader Reader
}

// NewListProposalsHandler создаёт новый ListProposalsHandler.
func NewListProposalsHandler(reader Reader) *ListProposalsHandler {
	return &ListProposalsHandler{reader: reader}
}

// Handle выполняет запрос.
func (h *ListProposalsHandler) Handle(ctx context.Context, q ListProposalsQuery) ([]ProposalDTO, error) {
	if q.ProfessorID == "" {
		err := errors.New("professor_id is required")
		return nil, shared.WrapError("proposal", "List", shared.ErrValidation, err.Error(), err)
	}

	var out []ProposalDTO
	err := h.reader.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		proposals, err := tx.Proposals().ListByProfessor(ctx, q.ProfessorID, shared.NewPagination(q.Page, q.PageSize))
		if err != nil {
			return fmt.Errorf("list_proposals: %w", err)
		}
		out = make([]ProposalDTO, 0, len(proposals))
		for _, p := range proposals {
			out = append(out, ProposalFromDomain(p))
		}
		return nil
	})
	return out, err
}

// GetProposalHandler returns one proposal.
type GetProposalHandler struct {
	reader Reader
}

// NewGetProposalHandler создаёт новый GetProposalHandler.
func NewGetProposalHandler(reader Reader) *GetProposalHandler {
	return &GetProposalHandler{reader: reader}
}

// Handle выполняет запрос.
func (h *GetProposalHandler) Handle(ctx context.Context, id string) (*ProposalDTO, error) {
	var out *ProposalDTO
	err := h.reader.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		p, err := tx.Proposals().GetByID(ctx, id)
		if err != nil {
			return err
		}
		dto := ProposalFromDomain(p)
		out = &dto
		return nil
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListActivityQuery reads the history of one record.
type ListActivityQuery struct {
	Kind     activity.EntityKind
	EntityID string
	Page     int
	PageSize int
}

// ListActivityHandler обрабатывает ListActivityQuery.
type ListActivityHandler struct {
	reader Reader
}

// NewListActivityHandler создаёт новый ListActivityHandler.
func NewListActivityHandler(reader Reader) *ListActivityHandler {
	return &ListActivityHandler{reader: reader}
}

// Handle выполняет запрос.
func (h *ListActivityHandler) Handle(ctx context.Context, q ListActivityQuery) ([]EntryDTO, error) {
	if !q.Kind.IsValid() || q.EntityID == "" {
		err := activity.ErrInvalidEntityKind
		return nil, shared.WrapError("activity", "List", shared.ErrValidation, "Unknown record.", err)
	}

	var out []EntryDTO
	err := h.reader.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		entries, err := tx.Activity().List(ctx, q.Kind, q.EntityID, shared.NewPagination(q.Page, q.PageSize))
		if err != nil {
			return fmt.Errorf("list_activity: %w", err)
		}
		out = make([]EntryDTO, 0, len(entries))
		for _, e := range entries {
			out = append(out, entryFromDomain(e))
		}
		return nil
	})
	return out, err
}
