package chat

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"livechat/internal/app/docstore"
	"livechat/internal/app/user"
	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
)

// Contact is a counterpart of a private conversation.
type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// ContactBook derives the private-chat counterparts of a user.
type ContactBook struct {
	store     docstore.Store
	directory *user.Directory
	limit     int
	log       zerolog.Logger
}

// NewContactBook creates a contact book reading conversation summaries from
// store and profiles from directory.
func NewContactBook(store docstore.Store, directory *user.Directory) *ContactBook {
	return &ContactBook{
		store:     store,
		directory: directory,
		limit:     user.DefaultLookupConcurrency,
		log:       logx.Component("contacts"),
	}
}

// Contacts returns the distinct counterparts of userID in first-seen order:
// receivers of conversations userID started, then senders of conversations
// addressed to userID. Counterparts found in neither profile collection are
// dropped.
func (b *ContactBook) Contacts(ctx context.Context, userID string) ([]Contact, error) {
	var sent, received []*docstore.Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sent, err = b.store.Where(gctx, PrivateChatsCollection, "senderId", userID)
		return err
	})
	g.Go(func() error {
		var err error
		received, err = b.store.Where(gctx, PrivateChatsCollection, "receiverId", userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(errs.ErrReadFailure, err)
	}

	var ids []string
	seen := map[string]struct{}{userID: {}}
	collect := func(snaps []*docstore.Snapshot, counterpart func(*Summary) string) {
		for _, snap := range snaps {
			var s Summary
			if err := snap.DataTo(&s); err != nil {
				b.log.Warn().Err(err).Str("conversation", snap.ID).Msg("Skipping undecodable conversation summary")
				continue
			}

			id := counterpart(&s)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	collect(sent, func(s *Summary) string { return s.ReceiverID })
	collect(received, func(s *Summary) string { return s.SenderID })

	slots := make([]*Contact, len(ids))

	var lookups errgroup.Group
	lookups.SetLimit(b.limit)
	for i, id := range ids {
		lookups.Go(func() error {
			entry, err := b.directory.Profile(ctx, id)
			if err != nil {
				b.log.Warn().Err(err).Str("contact_id", id).Msg("Contact lookup failed, omitting")
				return nil
			}
			if entry != nil {
				slots[i] = &Contact{ID: id, Name: entry.Name, Avatar: entry.Avatar}
			}
			return nil
		})
	}
	_ = lookups.Wait()

	out := make([]Contact, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}
