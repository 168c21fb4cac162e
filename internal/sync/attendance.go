package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcus/kasir/internal/localstore"
	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/remote"
)

var (
	ErrAlreadyClockedIn = errors.New("already clocked in")
	ErrNotClockedIn     = errors.New("not clocked in")
)

// ClockInInput is supplied by the staff PIN screen
type ClockInInput struct {
	UserID   string
	UserName string
	Photo    string
	Location *models.GeoPoint
}

// ClockIn starts a working record for a user. One user has at most one
// working record per branch.
func (e *Engine) ClockIn(ctx context.Context, in ClockInInput) (models.Attendance, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return models.Attendance{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	key, err := e.activeKey(localstore.EntityAttendance)
	if err != nil {
		return models.Attendance{}, err
	}

	a := models.Attendance{
		ID:       newID(),
		BranchID: key.Branch,
		UserID:   in.UserID,
		UserName: in.UserName,
		ClockIn:  e.now(),
		Photo:    in.Photo,
		Location: in.Location,
		Status:   models.AttendanceWorking,
		Revision: 1,
		Dirty:    true,
	}
	_, err = localstore.Mutate(e.store, key, func(recs []models.Attendance) ([]models.Attendance, error) {
		for _, r := range recs {
			if r.UserID == a.UserID && r.Status == models.AttendanceWorking {
				return nil, fmt.Errorf("%w: %s since %s", ErrAlreadyClockedIn, r.UserID, r.ClockIn.Format("15:04"))
			}
		}
		return append([]models.Attendance{a}, recs...), nil
	})
	if err != nil {
		return models.Attendance{}, err
	}
	slog.Info("clock in", "user", a.UserID, "branch", key.Branch)
	e.pushAttendance(ctx, key, a, true)
	return a, nil
}

// ClockOut closes the user's working record.
func (e *Engine) ClockOut(ctx context.Context, userID string) (models.Attendance, error) {
	key, err := e.activeKey(localstore.EntityAttendance)
	if err != nil {
		return models.Attendance{}, err
	}
	var out models.Attendance
	_, err = localstore.Mutate(e.store, key, func(recs []models.Attendance) ([]models.Attendance, error) {
		for i := range recs {
			if recs[i].UserID != userID || recs[i].Status != models.AttendanceWorking {
				continue
			}
			now := e.now()
			recs[i].ClockOut = &now
			recs[i].Status = models.AttendanceDone
			recs[i].Revision++
			recs[i].Dirty = true
			out = recs[i]
			return recs, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNotClockedIn, userID)
	})
	if err != nil {
		return models.Attendance{}, err
	}
	slog.Info("clock out", "user", userID, "branch", key.Branch)
	e.pushAttendance(ctx, key, out, false)
	return out, nil
}

// Attendance returns the active branch's attendance records, newest first.
func (e *Engine) Attendance() []models.Attendance {
	key, err := e.activeKey(localstore.EntityAttendance)
	if err != nil {
		return []models.Attendance{}
	}
	return localstore.Load[models.Attendance](e.store, key)
}

// pushAttendance mirrors ClockIn/ClockOut. Attendance has no subscriber, so
// a clock-out whose clock-in never reached the remote is upserted.
func (e *Engine) pushAttendance(ctx context.Context, key localstore.Key, a models.Attendance, create bool) {
	if !e.remote.Available() {
		return
	}
	e.background(ctx, func(ctx context.Context) {
		defer e.pushes.lock(CollectionAttendance + "/" + a.ID)()
		a := latest[models.Attendance](e.store, key, a)
		doc, err := a.Document()
		if err != nil {
			slog.Error("attendance not pushable", "attendance", a.ID, "err", err)
			return
		}
		if create {
			_, err = e.remote.Insert(ctx, CollectionAttendance, doc)
		} else {
			err = upsert(ctx, e.remote, CollectionAttendance, a.ID, doc)
		}
		entry := localstore.HistoryEntry{
			Direction: localstore.DirectionPush,
			Entity:    localstore.EntityAttendance,
			EntityID:  a.ID,
			Result:    localstore.ResultOK,
		}
		if err != nil {
			slog.Debug("attendance push failed, left dirty", "attendance", a.ID, "kind", remote.KindOf(err).String(), "err", err)
			entry.Result = localstore.ResultFailed
			entry.Detail = err.Error()
			e.recordHistory(entry)
			return
		}
		markClean[models.Attendance](e.store, key, a.ID, a.Revision)
		e.recordHistory(entry)
	})
}
