package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type proposalStore struct {
	s *Store
}

func copyProposal(p *models.Proposal) *models.Proposal {
	out := *p
	out.Actions = slices.Clone(p.Actions)
	out.ExecutionResult = slices.Clone(p.ExecutionResult)
	if p.DecidedAt != nil {
		t := *p.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}

func (ps *proposalStore) Insert(ctx context.Context, proposal *models.Proposal) error {
	return ps.s.locked(func(st *state) error {
		stored := copyProposal(proposal)
		stored.CreatedAt = stored.CreatedAt.UTC()
		st.proposals[stored.ID] = stored
		return nil
	})
}

func (ps *proposalStore) Get(ctx context.Context, id string) (*models.Proposal, error) {
	var out *models.Proposal
	err := ps.s.locked(func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return store.NewNotFoundError("proposal", id)
		}
		out = copyProposal(p)
		return nil
	})
	return out, err
}

func (ps *proposalStore) Transition(ctx context.Context, id string, from, to models.ProposalStatus, decidedBy string, result []models.ActionResult, now time.Time) (*models.Proposal, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, from, to)
	}
	var out *models.Proposal
	err := ps.s.locked(func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return store.NewNotFoundError("proposal", id)
		}
		if p.Status != from {
			return fmt.Errorf("%w: proposal %s is %s, expected %s", store.ErrInvalidTransition, id, p.Status, from)
		}
		next := copyProposal(p)
		next.Status = to
		if from == models.ProposalPending {
			t := now.UTC()
			next.DecidedAt = &t
			next.DecidedBy = decidedBy
		} else {
			next.ExecutionResult = slices.Clone(result)
		}
		st.proposals[id] = next
		out = copyProposal(next)
		return nil
	})
	return out, err
}

func (ps *proposalStore) List(ctx context.Context, status *models.ProposalStatus) ([]*models.Proposal, error) {
	var out []*models.Proposal
	err := ps.s.locked(func(st *state) error {
		for _, p := range st.proposals {
			if status != nil && p.Status != *status {
				continue
			}
			out = append(out, copyProposal(p))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
