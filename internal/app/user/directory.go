package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"livechat/internal/app/docstore"
	"livechat/internal/pkg/errs"
)

// Profile fields that owners may change.
const (
	FieldUsername   = "username"
	FieldAvatar     = "avatar"
	FieldInnerImage = "innerImage"
)

// Entry is the public view of a user or visitor.
type Entry struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
	InnerImage string `json:"innerImage"`
	Rank       string `json:"rank"`

	// Progress is only set for registered users.
	Level          *int `json:"level,omitempty"`
	CurrentExp     *int `json:"currentExp,omitempty"`
	TotalExp       *int `json:"totalExp,omitempty"`
	ExpToNextLevel *int `json:"expToNextLevel,omitempty"`
}

func registeredEntry(id string, p *Profile) *Entry {
	level, current, total, next := p.EffectiveLevel(), p.CurrentExp, p.TotalExp, p.EffectiveThreshold()
	return &Entry{
		ID:             id,
		Type:           TypeRegistered,
		Name:           p.Username,
		Avatar:         orDefault(p.Avatar, DefaultAvatar),
		InnerImage:     orDefault(p.InnerImage, DefaultInnerImage),
		Rank:           orDefault(p.Rank, RankMember),
		Level:          &level,
		CurrentExp:     &current,
		TotalExp:       &total,
		ExpToNextLevel: &next,
	}
}

func visitorEntry(id string, v *Visitor) *Entry {
	return &Entry{
		ID:         id,
		Type:       TypeVisitor,
		Name:       v.Name,
		Avatar:     orDefault(v.Avatar, DefaultAvatar),
		InnerImage: orDefault(v.InnerImage, DefaultInnerImage),
		Rank:       orDefault(v.Rank, RankVisitor),
	}
}

// Directory reads and edits user and visitor profiles.
type Directory struct {
	store docstore.Store
}

// NewDirectory creates a directory over store.
func NewDirectory(store docstore.Store) *Directory {
	return &Directory{store: store}
}

// Profile returns the registered user with id, else the visitor with id,
// else nil with no error.
func (d *Directory) Profile(ctx context.Context, id string) (*Entry, error) {
	snap, err := d.store.Get(ctx, UserRef(id))
	if err == nil {
		var p Profile
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", id, err)
		}
		return registeredEntry(id, &p), nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("read user %s: %w", id, err)
	}

	snap, err = d.store.Get(ctx, VisitorRef(id))
	if err == nil {
		var v Visitor
		if err := snap.DataTo(&v); err != nil {
			return nil, fmt.Errorf("decode visitor %s: %w", id, err)
		}
		return visitorEntry(id, &v), nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("read visitor %s: %w", id, err)
	}

	return nil, nil
}

// All lists every user followed by every visitor whose id is not also a user.
// Documents that cannot be decoded are skipped.
func (d *Directory) All(ctx context.Context) ([]*Entry, error) {
	users, err := d.store.List(ctx, UsersCollection)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	visitors, err := d.store.List(ctx, VisitorsCollection)
	if err != nil {
		return nil, fmt.Errorf("list visitors: %w", err)
	}

	seen := make(map[string]struct{}, len(users))
	out := make([]*Entry, 0, len(users)+len(visitors))

	for _, snap := range users {
		var p Profile
		if err := snap.DataTo(&p); err != nil {
			continue
		}
		seen[snap.ID] = struct{}{}
		out = append(out, registeredEntry(snap.ID, &p))
	}

	for _, snap := range visitors {
		if _, dup := seen[snap.ID]; dup {
			continue
		}
		var v Visitor
		if err := snap.DataTo(&v); err != nil {
			continue
		}
		out = append(out, visitorEntry(snap.ID, &v))
	}

	return out, nil
}

// UpdateProfile applies owner edits to the registered user id. Only username,
// avatar and innerImage may change; an empty innerImage removes the field.
func (d *Directory) UpdateProfile(ctx context.Context, id string, changes map[string]any) error {
	if len(changes) == 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	fields := make(docstore.Fields, len(changes))
	for k, v := range changes {
		var s string
		if v != nil {
			str, ok := v.(string)
			if !ok {
				return errs.NewError(errs.ErrProfileFieldInvalid, k)
			}
			s = strings.TrimSpace(str)
		}

		switch k {
		case FieldUsername, FieldAvatar:
			if s == "" {
				return errs.NewError(errs.ErrProfileFieldInvalid, k)
			}
			fields[k] = s
		case FieldInnerImage:
			if s == "" {
				fields[k] = docstore.Delete
			} else {
				fields[k] = s
			}
		default:
			return errs.NewError(errs.ErrProfileFieldInvalid, k)
		}
	}

	err := d.store.Update(ctx, UserRef(id), fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return errs.NewError(errs.ErrProfileNotFound)
	}
	if err != nil {
		return errs.Wrap(errs.ErrWriteFailure, err)
	}
	return nil
}
