package models

import (
	"encoding/json"
	"fmt"
)

// Document converts the order into its remote representation. The dirty
// flag is local sync metadata and is never sent.
func (o Order) Document() (map[string]any, error) {
	return toDocument(o)
}

// OrderFromDocument parses a remote order document. Fields the order does
// not know about are ignored; the result is always clean.
func OrderFromDocument(doc map[string]any) (Order, error) {
	var o Order
	if err := fromDocument(doc, &o); err != nil {
		return Order{}, fmt.Errorf("order document: %w", err)
	}
	if o.ID == "" {
		return Order{}, fmt.Errorf("order document: missing id")
	}
	o.Dirty = false
	return o, nil
}

// Document converts the attendance record into its remote representation.
func (a Attendance) Document() (map[string]any, error) {
	return toDocument(a)
}

// AttendanceFromDocument parses a remote attendance document.
func AttendanceFromDocument(doc map[string]any) (Attendance, error) {
	var a Attendance
	if err := fromDocument(doc, &a); err != nil {
		return Attendance{}, fmt.Errorf("attendance document: %w", err)
	}
	a.Dirty = false
	return a, nil
}

// Document converts a master document for the remote mirror.
func (m MasterDoc) Document() (map[string]any, error) {
	return toDocument(m)
}

// MasterFromDocument parses a remote master document.
func MasterFromDocument(doc map[string]any) (MasterDoc, error) {
	var m MasterDoc
	if err := fromDocument(doc, &m); err != nil {
		return MasterDoc{}, fmt.Errorf("master document: %w", err)
	}
	return m, nil
}

func toDocument(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	delete(doc, "dirty")
	return doc, nil
}

func fromDocument(doc map[string]any, dst any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Syncable is implemented by records that carry the dirty flag.
type Syncable interface {
	RecordID() string
	RecordRevision() int64
	IsDirty() bool
	SetDirty(dirty bool)
}

func (o *Order) RecordID() string      { return o.ID }
func (o *Order) RecordRevision() int64 { return o.Revision }
func (o *Order) IsDirty() bool         { return o.Dirty }
func (o *Order) SetDirty(dirty bool)   { o.Dirty = dirty }

func (a *Attendance) RecordID() string      { return a.ID }
func (a *Attendance) RecordRevision() int64 { return a.Revision }
func (a *Attendance) IsDirty() bool         { return a.Dirty }
func (a *Attendance) SetDirty(dirty bool)   { a.Dirty = dirty }
