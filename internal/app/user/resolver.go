package user

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"livechat/internal/app/docstore"
	"livechat/internal/metrics"
	"livechat/internal/pkg/logx"
)

// DefaultLookupConcurrency bounds the parallel reads of one Resolve call.
const DefaultLookupConcurrency = 8

// Resolver classifies sender ids as registered users, visitors or unknown.
type Resolver struct {
	store docstore.Store
	limit int
	log   zerolog.Logger
}

// NewResolver creates a resolver reading from store.
func NewResolver(store docstore.Store) *Resolver {
	return &Resolver{
		store: store,
		limit: DefaultLookupConcurrency,
		log:   logx.Component("identity"),
	}
}

// Lookup classifies a single id: users first, then visitors, then unknown.
// Only store failures other than a missing document are returned.
func (r *Resolver) Lookup(ctx context.Context, id string) (Lookup, error) {
	snap, err := r.store.Get(ctx, UserRef(id))
	switch {
	case err == nil:
		var p Profile
		if err := snap.DataTo(&p); err != nil {
			r.log.Warn().Err(err).Str("user_id", id).Msg("Undecodable user profile, using defaults")
		}
		level := p.EffectiveLevel()
		return Lookup{Type: TypeRegistered, Rank: orDefault(p.Rank, RankMember), Level: &level}, nil
	case !errors.Is(err, docstore.ErrNotFound):
		return Unknown(), fmt.Errorf("read user %s: %w", id, err)
	}

	snap, err = r.store.Get(ctx, VisitorRef(id))
	switch {
	case err == nil:
		var v Visitor
		if err := snap.DataTo(&v); err != nil {
			r.log.Warn().Err(err).Str("visitor_id", id).Msg("Undecodable visitor profile, using defaults")
		}
		return Lookup{Type: TypeVisitor, Rank: orDefault(v.Rank, RankVisitor)}, nil
	case !errors.Is(err, docstore.ErrNotFound):
		return Unknown(), fmt.Errorf("read visitor %s: %w", id, err)
	}

	return Unknown(), nil
}

// Resolve classifies every distinct id concurrently and returns once all
// lookups finished. A failed lookup is logged and yields Unknown for that id
// only. Empty ids are ignored.
func (r *Resolver) Resolve(ctx context.Context, ids []string) map[string]Lookup {
	out := make(map[string]Lookup, len(ids))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.limit)

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			lookup, err := r.Lookup(ctx, id)
			result := lookup.Type
			if err != nil {
				r.log.Warn().Err(err).Str("sender_id", id).Msg("Identity lookup failed, treating as unknown")
				lookup = Unknown()
				result = "error"
			}
			metrics.IdentityLookups.WithLabelValues(result).Inc()

			mu.Lock()
			out[id] = lookup
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return out
}
