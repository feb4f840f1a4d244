package core

import (
	"itemdb/pkg/domain"

	"github.com/google/uuid"
)

// Login makes the user with the given UUID the current user. Only one user
// may be logged in at a time.
func (w *World) Login(id uuid.UUID, password string) error {
	if w.current != nil {
		return domain.ErrAlreadyLoggedIn
	}
	n, ok := w.users[id]
	if !ok {
		return domain.ErrNotFound{Kind: domain.KindUser, ID: id}
	}
	if !n.rec.CheckPassword(password) {
		return domain.ErrBadPassword
	}
	u := n.rec
	w.current = &u
	w.log.WithField("user", id).Info("user logged in")
	return nil
}

// Logout ends the current session.
func (w *World) Logout() error {
	if w.current == nil {
		return domain.ErrNoUserLoggedIn
	}
	w.log.WithField("user", w.current.ID).Info("user logged out")
	w.current = nil
	return nil
}

// CurrentUser returns the logged-in user.
func (w *World) CurrentUser() (domain.User, bool) {
	if w.current == nil {
		return domain.User{}, false
	}
	return *w.current, true
}

// Users returns every known user in the order they were first seen.
func (w *World) Users() []domain.User {
	out := make([]domain.User, 0, len(w.userOrder))
	for _, id := range w.userOrder {
		out = append(out, w.users[id].rec)
	}
	return out
}

// NewUser creates an account and logs it in. The user record, its item and
// its name are committed in one transaction stamped by the new user. No other
// user may be logged in.
func (w *World) NewUser(name, password string) (domain.User, error) {
	if w.current != nil {
		return domain.User{}, domain.ErrAlreadyLoggedIn
	}
	id, err := w.gen.Next("")
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           id,
		Stamp:        domain.NewStamp(id, w.clock.Now()),
		PasswordHash: domain.HashPassword(password),
	}
	w.current = &u
	err = w.RunInTransaction(func() error {
		rec := domain.ItemRecord{ID: id, Stamp: u.Stamp}
		if err := w.applyItem(rec); err != nil {
			return err
		}
		w.record(rec)
		w.applyUser(u)
		w.record(u)
		it := w.items[id]
		if name != "" {
			if _, err := it.AddEntry(domain.AttrName, domain.Text(name)); err != nil {
				return err
			}
		}
		_, err := it.AssignToCategory(domain.CategoryUser)
		return err
	})
	if err != nil {
		w.current = nil
		return domain.User{}, err
	}
	w.log.WithField("user", id).Info("user created")
	return u, nil
}
