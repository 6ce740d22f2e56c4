// Package directory holds the registered chats, their names and saved
// addresses, and writes every change through to a repository.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/internal/repository/contract"
)

const moduleName = "DIRECTORY"

var (
	ErrUnknownUser      = errors.New("unknown user")
	ErrCannotDeleteSelf = errors.New("cannot delete self")
	ErrAddressIndex     = errors.New("no address with that number")
	ErrDuplicateLabel   = errors.New("an address with that label already exists")
	ErrEmptyName        = errors.New("name must not be empty")
	ErrPersist          = errors.New("saving the directory failed")
)

type Directory struct {
	mu     sync.RWMutex
	doc    model.DirectoryDocument
	store  contract.DirectoryRepository
	logger logger.ILogger
}

// Load reads the current document from store.
func Load(ctx context.Context, store contract.DirectoryRepository, log logger.ILogger) (*Directory, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}
	log.Info(moduleName, "Directory loaded", map[string]interface{}{
		"users": len(doc.Users),
		"owner": doc.OwnerChatID,
	})
	return &Directory{doc: doc, store: store, logger: log}, nil
}

// mutate applies fn to a copy of the document and keeps the copy only if it
// was saved.
func (d *Directory) mutate(ctx context.Context, action string, fn func(doc *model.DirectoryDocument) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.doc.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := d.store.Save(ctx, next); err != nil {
		d.logger.Error(moduleName, "Failed to save directory", map[string]interface{}{
			"action": action,
			"error":  err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	d.doc = next
	d.logger.Debug(moduleName, "Directory saved", map[string]interface{}{"action": action})
	return nil
}

func (d *Directory) Owner() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.OwnerChatID
}

func (d *Directory) IsOwner(chatID string) bool {
	owner := d.Owner()
	return owner != "" && owner == chatID
}

// SetOwner makes chatID the owner and verifies its record if one exists.
func (d *Directory) SetOwner(ctx context.Context, chatID string) error {
	return d.mutate(ctx, "set_owner", func(doc *model.DirectoryDocument) error {
		doc.OwnerChatID = chatID
		if u, ok := doc.Users[chatID]; ok {
			u.Verified = true
			doc.Users[chatID] = u
		}
		return nil
	})
}

func (d *Directory) Get(chatID string) (model.UserRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.doc.Users[chatID]
	if !ok {
		return model.UserRecord{}, false
	}
	return u.Clone(), true
}

// Users returns every record sorted by name.
func (d *Directory) Users() []model.UserRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.UserRecord, 0, len(d.doc.Users))
	for _, u := range d.doc.Users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if strings.EqualFold(out[i].Name, out[j].Name) {
			return out[i].ChatID < out[j].ChatID
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Upsert creates or renames the record of chatID. New records are verified
// only for the owner.
func (d *Directory) Upsert(ctx context.Context, chatID, name string) (model.UserRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.UserRecord{}, ErrEmptyName
	}
	var out model.UserRecord
	err := d.mutate(ctx, "upsert", func(doc *model.DirectoryDocument) error {
		u, ok := doc.Users[chatID]
		if !ok {
			u = model.UserRecord{ChatID: chatID, Addresses: []model.AddressRecord{}}
		}
		u.Name = name
		if chatID == doc.OwnerChatID {
			u.Verified = true
		}
		doc.Users[chatID] = u
		out = u.Clone()
		return nil
	})
	return out, err
}

func (d *Directory) Rename(ctx context.Context, chatID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	return d.mutate(ctx, "rename", func(doc *model.DirectoryDocument) error {
		u, ok := doc.Users[chatID]
		if !ok {
			return ErrUnknownUser
		}
		u.Name = name
		doc.Users[chatID] = u
		return nil
	})
}

func (d *Directory) Verify(ctx context.Context, chatID string) error {
	return d.mutate(ctx, "verify", func(doc *model.DirectoryDocument) error {
		u, ok := doc.Users[chatID]
		if !ok {
			return ErrUnknownUser
		}
		u.Verified = true
		doc.Users[chatID] = u
		return nil
	})
}

// Remove deletes target on behalf of requester. Nobody can remove themselves.
func (d *Directory) Remove(ctx context.Context, requester, target string) error {
	if requester == target {
		return ErrCannotDeleteSelf
	}
	return d.mutate(ctx, "remove", func(doc *model.DirectoryDocument) error {
		if _, ok := doc.Users[target]; !ok {
			return ErrUnknownUser
		}
		delete(doc.Users, target)
		return nil
	})
}

func (d *Directory) AddAddress(ctx context.Context, chatID string, addr model.AddressRecord) error {
	addr.Label = strings.TrimSpace(addr.Label)
	return d.mutate(ctx, "add_address", func(doc *model.DirectoryDocument) error {
		u, ok := doc.Users[chatID]
		if !ok {
			return ErrUnknownUser
		}
		for _, a := range u.Addresses {
			if strings.EqualFold(a.Label, addr.Label) {
				return ErrDuplicateLabel
			}
		}
		u.Addresses = append(u.Addresses, addr)
		doc.Users[chatID] = u
		return nil
	})
}

// RemoveAddress deletes the address at the 1-based index.
func (d *Directory) RemoveAddress(ctx context.Context, chatID string, index int) (model.AddressRecord, error) {
	var removed model.AddressRecord
	err := d.mutate(ctx, "remove_address", func(doc *model.DirectoryDocument) error {
		u, ok := doc.Users[chatID]
		if !ok {
			return ErrUnknownUser
		}
		if index < 1 || index > len(u.Addresses) {
			return ErrAddressIndex
		}
		removed = u.Addresses[index-1]
		u.Addresses = append(u.Addresses[:index-1], u.Addresses[index:]...)
		doc.Users[chatID] = u
		return nil
	})
	return removed, err
}

// FindByName matches names case-insensitively.
func (d *Directory) FindByName(name string, verifiedOnly bool) []model.UserRecord {
	name = strings.TrimSpace(name)
	var out []model.UserRecord
	for _, u := range d.Users() {
		if verifiedOnly && !u.Verified {
			continue
		}
		if strings.EqualFold(u.Name, name) {
			out = append(out, u)
		}
	}
	return out
}

// FindByAddressLabel returns every address of a verified user carrying label.
func (d *Directory) FindByAddressLabel(label string) []model.DestinationCandidate {
	label = strings.TrimSpace(label)
	var out []model.DestinationCandidate
	for _, u := range d.Users() {
		if !u.Verified {
			continue
		}
		for _, a := range u.Addresses {
			if strings.EqualFold(a.Label, label) {
				out = append(out, model.DestinationCandidate{
					OwnerChatID: u.ChatID,
					OwnerName:   u.Name,
					Address:     a,
				})
			}
		}
	}
	return out
}
