package models

import "time"

// AttendanceStatus represents whether a staff member is still on the clock
type AttendanceStatus string

const (
	AttendanceWorking AttendanceStatus = "working"
	AttendanceDone    AttendanceStatus = "done"
)

// GeoPoint is an optional clock-in location
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Attendance is a single clock-in/clock-out record
type Attendance struct {
	ID       string           `json:"id"`
	BranchID string           `json:"branch_id"`
	UserID   string           `json:"user_id"`
	UserName string           `json:"user_name,omitempty"`
	ClockIn  time.Time        `json:"clock_in"`
	Photo    string           `json:"photo,omitempty"`
	Location *GeoPoint        `json:"location,omitempty"`
	ClockOut *time.Time       `json:"clock_out,omitempty"`
	Status   AttendanceStatus `json:"status"`
	Revision int64            `json:"revision"`
	Dirty    bool             `json:"dirty"`
}
