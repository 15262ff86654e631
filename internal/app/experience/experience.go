/*
Package experience maintains the level and experience counters of registered
users.

Every public message awards a fixed gain. Crossing the threshold raises the
level by exactly one, carries the remainder over and sets the next threshold
to 200 + level*100.
*/
package experience

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"livechat/internal/app/docstore"
	"livechat/internal/app/user"
	"livechat/internal/metrics"
	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
)

// Gain is the experience awarded per public message.
const Gain = 10

// Threshold returns the experience needed to leave level.
func Threshold(level int) int {
	return 200 + level*100
}

// Progress is the persisted progression of a registered user.
type Progress struct {
	Level          int `json:"level"`
	TotalExp       int `json:"totalExp"`
	CurrentExp     int `json:"currentExp"`
	ExpToNextLevel int `json:"expToNextLevel"`
}

// Apply adds gain to p. At most one level-up happens per call, even when the
// gain would cross more than one threshold.
func Apply(p Progress, gain int) (Progress, bool) {
	p.CurrentExp += gain
	p.TotalExp += gain

	if p.CurrentExp < p.ExpToNextLevel {
		return p, false
	}

	p.Level++
	p.CurrentExp -= p.ExpToNextLevel
	p.ExpToNextLevel = Threshold(p.Level)
	return p, true
}

func (p Progress) fields() docstore.Fields {
	return docstore.Fields{
		"level":          p.Level,
		"totalExp":       p.TotalExp,
		"currentExp":     p.CurrentExp,
		"expToNextLevel": p.ExpToNextLevel,
	}
}

// Engine reads and writes progression on user documents.
type Engine struct {
	store docstore.Store
	log   zerolog.Logger
}

// NewEngine creates an engine over store.
func NewEngine(store docstore.Store) *Engine {
	return &Engine{store: store, log: logx.Component("experience")}
}

// Award grants Gain to the registered user id and persists the four counters
// in one update. It returns nil without writing when id is not a registered user.
func (e *Engine) Award(ctx context.Context, id string) (*Progress, error) {
	snap, err := e.store.Get(ctx, user.UserRef(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user %s: %w", id, err)
	}

	var p user.Profile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}

	if p.UserType != user.TypeRegistered {
		return nil, nil
	}

	before := Progress{
		Level:          p.EffectiveLevel(),
		TotalExp:       p.TotalExp,
		CurrentExp:     p.CurrentExp,
		ExpToNextLevel: p.EffectiveThreshold(),
	}
	after, leveled := Apply(before, Gain)

	if err := e.store.Update(ctx, user.UserRef(id), after.fields()); err != nil {
		metrics.WriteFailures.WithLabelValues("experience").Inc()
		return nil, errs.Wrap(errs.ErrWriteFailure, err)
	}

	metrics.ExperienceAwards.Inc()
	if leveled {
		metrics.LevelUps.Inc()
		e.log.Info().Str("user_id", id).Int("level", after.Level).Msg("User leveled up")
	}

	return &after, nil
}

// SetLevel resets the progression of user id to the start of level.
func (e *Engine) SetLevel(ctx context.Context, id string, level int) (*Progress, error) {
	if level < 1 {
		e.log.Warn().Str("user_id", id).Int("level", level).Msg("Rejected level below 1")
		return nil, errs.NewError(errs.ErrInvalidLevel)
	}

	snap, err := e.store.Get(ctx, user.UserRef(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, errs.NewError(errs.ErrProfileNotFound)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrReadFailure, err)
	}

	var p user.Profile
	if err := snap.DataTo(&p); err != nil {
		return nil, errs.Wrap(errs.ErrReadFailure, err)
	}

	update := docstore.Fields{
		"level":          level,
		"currentExp":     0,
		"expToNextLevel": Threshold(level),
	}
	if err := e.store.Update(ctx, user.UserRef(id), update); err != nil {
		metrics.WriteFailures.WithLabelValues("level").Inc()
		return nil, errs.Wrap(errs.ErrWriteFailure, err)
	}

	return &Progress{Level: level, TotalExp: p.TotalExp, CurrentExp: 0, ExpToNextLevel: Threshold(level)}, nil
}
