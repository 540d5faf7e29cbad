package memory

import (
	"context"
	"sort"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type tokenStore struct {
	s *Store
}

func (ts *tokenStore) Append(ctx context.Context, entry *models.TokenLedgerEntry) error {
	return ts.s.locked(func(st *state) error {
		st.nextLedgerID++
		stored := *entry
		stored.ID = st.nextLedgerID
		stored.At = stored.At.UTC()
		st.ledger = append(st.ledger, &stored)
		entry.ID = stored.ID
		return nil
	})
}

func (ts *tokenStore) Aggregate(ctx context.Context, kind models.AgentKind, provider models.Provider, month string) (*models.TokenAggregate, error) {
	agg := &models.TokenAggregate{AgentKind: kind, Provider: provider, Month: month}
	err := ts.s.locked(func(st *state) error {
		for _, e := range st.ledger {
			if e.AgentKind == kind && e.Provider == provider && e.Month == month {
				agg.TokensTotal += e.TokensIn + e.TokensOut
				agg.RequestCount++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

func (ts *tokenStore) Usage(ctx context.Context, filter store.UsageFilter) ([]*models.TokenAggregate, error) {
	type key struct {
		kind     models.AgentKind
		provider models.Provider
		month    string
	}
	groups := make(map[key]*models.TokenAggregate)
	err := ts.s.locked(func(st *state) error {
		for _, e := range st.ledger {
			if filter.AgentKind != "" && e.AgentKind != filter.AgentKind {
				continue
			}
			if filter.Provider != "" && e.Provider != filter.Provider {
				continue
			}
			if filter.Month != "" && e.Month != filter.Month {
				continue
			}
			k := key{e.AgentKind, e.Provider, e.Month}
			agg, ok := groups[k]
			if !ok {
				agg = &models.TokenAggregate{AgentKind: e.AgentKind, Provider: e.Provider, Month: e.Month}
				groups[k] = agg
			}
			agg.TokensTotal += e.TokensIn + e.TokensOut
			agg.RequestCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.TokenAggregate, 0, len(groups))
	for _, agg := range groups {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month > out[j].Month
		}
		if out[i].AgentKind != out[j].AgentKind {
			return out[i].AgentKind < out[j].AgentKind
		}
		return out[i].Provider < out[j].Provider
	})
	return out, nil
}

func (ts *tokenStore) ArchiveMonth(ctx context.Context, month string) (int64, error) {
	return ts.archive(ctx, func(m string) bool { return m == month })
}

func (ts *tokenStore) ArchiveOlderThan(ctx context.Context, month string) (int64, error) {
	return ts.archive(ctx, func(m string) bool { return m < month })
}

func (ts *tokenStore) archive(ctx context.Context, match func(month string) bool) (int64, error) {
	var moved int64
	err := ts.s.locked(func(st *state) error {
		kept := st.ledger[:0:0]
		for _, e := range st.ledger {
			if match(e.Month) {
				st.archive = append(st.archive, e)
				moved++
			} else {
				kept = append(kept, e)
			}
		}
		st.ledger = kept
		return nil
	})
	return moved, err
}

// ArchivedTokens exposes the archive table for assertions.
func (s *Store) ArchivedTokens() []*models.TokenLedgerEntry {
	var out []*models.TokenLedgerEntry
	_ = s.locked(func(st *state) error {
		for _, e := range st.archive {
			copied := *e
			out = append(out, &copied)
		}
		return nil
	})
	return out
}
