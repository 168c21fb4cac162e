package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
)

// MasterPath is the remote document path of a branch's master document
func MasterPath(branch string, kind models.MasterKind) string {
	return fmt.Sprintf("branches/%s/master/%s", branch, kind)
}

func (e *Engine) masterKey(branch string, kind models.MasterKind) localstore.Key {
	return e.key(branch, localstore.MasterEntity(string(kind)))
}

// SetMaster replaces a whole master document locally and mirrors it to the
// remote store. The most recent writer wins.
func (e *Engine) SetMaster(ctx context.Context, kind models.MasterKind, value any, by string) (models.MasterDoc, error) {
	if !kind.IsValid() {
		return models.MasterDoc{}, fmt.Errorf("%w: master kind %q", ErrInvalidInput, kind)
	}
	branch := e.Branch()
	if branch == "" {
		return models.MasterDoc{}, ErrNoBranch
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return models.MasterDoc{}, fmt.Errorf("encode %s: %w", kind, err)
	}

	doc := models.MasterDoc{Kind: kind, Value: raw, UpdatedAt: e.now(), UpdatedBy: by}
	localstore.SaveDoc(e.store, e.masterKey(branch, kind), doc)

	if e.mirror && e.remote.Available() {
		e.background(ctx, func(ctx context.Context) {
			rdoc, err := doc.Document()
			if err != nil {
				slog.Error("master document not pushable", "kind", kind, "err", err)
				return
			}
			if err := e.remote.SetDocument(ctx, MasterPath(branch, kind), rdoc); err != nil {
				slog.Debug("master mirror failed", "kind", kind, "kind_err", remote.KindOf(err).String(), "err", err)
			}
		})
	}
	return doc, nil
}

// Master returns the active branch's master document of kind.
func (e *Engine) Master(kind models.MasterKind) (models.MasterDoc, bool) {
	branch := e.Branch()
	if branch == "" {
		return models.MasterDoc{}, false
	}
	return localstore.LoadDoc[models.MasterDoc](e.store, e.masterKey(branch, kind))
}

// DecodeMaster unmarshals a master document's value into v.
func (e *Engine) DecodeMaster(kind models.MasterKind, v any) bool {
	doc, ok := e.Master(kind)
	if !ok || len(doc.Value) == 0 {
		return false
	}
	if err := json.Unmarshal(doc.Value, v); err != nil {
		slog.Warn("master document undecodable", "kind", kind, "err", err)
		return false
	}
	return true
}

// Profile returns the store profile, zero when none is stored.
func (e *Engine) Profile() models.Profile {
	return e.profile(e.Branch())
}

func (e *Engine) profile(branch string) models.Profile {
	var p models.Profile
	doc, ok := localstore.LoadDoc[models.MasterDoc](e.store, e.masterKey(branch, models.MasterProfile))
	if !ok || len(doc.Value) == 0 {
		return p
	}
	if err := json.Unmarshal(doc.Value, &p); err != nil {
		slog.Warn("profile undecodable, pricing without tax/service", "err", err)
		return models.Profile{}
	}
	return p
}

// Menu returns the menu items, empty when none are stored.
func (e *Engine) Menu() []models.MenuItem {
	var items []models.MenuItem
	e.DecodeMaster(models.MasterMenu, &items)
	return items
}

// BranchStatus returns the branch flags; a branch with no status document
// is open.
func (e *Engine) BranchStatus() models.BranchStatus {
	st := models.BranchStatus{Open: true}
	e.DecodeMaster(models.MasterStatus, &st)
	return st
}

// SetBranchStatus replaces the branch flags.
func (e *Engine) SetBranchStatus(ctx context.Context, st models.BranchStatus, by string) error {
	_, err := e.SetMaster(ctx, models.MasterStatus, st, by)
	return err
}

// applyRemoteMaster overwrites the local copy with a remote document.
func (e *Engine) applyRemoteMaster(branch string, kind models.MasterKind, doc remote.Document) {
	m, err := models.MasterFromDocument(doc)
	if err != nil {
		slog.Warn("skipping malformed remote master document", "kind", kind, "err", err)
		return
	}
	if m.Kind == "" {
		m.Kind = kind
	}
	localstore.SaveDoc(e.store, e.masterKey(branch, kind), m)
}
