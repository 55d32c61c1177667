// Package attendance defines the typed records read from a data source.
//
// Sources map their native rows (SQL, Firestore documents, JSON snapshots)
// into these types at the boundary so the rest of the pipeline never sees
// dynamically shaped data.
package attendance

import (
	"strings"
	"time"
)

// TimestampLayout is the wall-clock layout of clock-in and clock-out strings.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the layout of Record.Date.
const DateLayout = "2006-01-02"

// StatusApproved marks an attendance entry confirmed by a supervisor.
const StatusApproved = "approved"

// Record is a single attendance entry.
type Record struct {
	ID          string  `json:"id" gorm:"column:id;primaryKey"`
	WorkerID    string  `json:"worker_id" gorm:"column:user_id;index"`
	Status      string  `json:"status" gorm:"column:status"`
	WorkMinutes float64 `json:"work_minutes" gorm:"column:work_minutes"`
	Date        string  `json:"date" gorm:"column:date;index"`
	ClockIn     *string `json:"clock_in,omitempty" gorm:"column:clock_in_time"`
	ClockOut    *string `json:"clock_out,omitempty" gorm:"column:clock_out_time"`
}

// TableName binds Record to the attendance table.
func (Record) TableName() string { return "attendance" }

// Approved reports whether the record counts toward performance metrics.
func (r Record) Approved() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), StatusApproved)
}

// WorkHours returns WorkMinutes converted to hours.
func (r Record) WorkHours() float64 {
	return r.WorkMinutes / 60
}

// User is a person who may record attendance.
type User struct {
	ID         string `json:"id" gorm:"column:id;primaryKey"`
	Name       string `json:"name" gorm:"column:name"`
	Email      string `json:"email" gorm:"column:email"`
	Role       string `json:"role" gorm:"column:role"`
	WorkerCode string `json:"worker_code" gorm:"column:worker_id"`
}

// TableName binds User to the users table.
func (User) TableName() string { return "users" }

// DisplayName returns Name, or "Unknown" when it is blank.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) == "" {
		return "Unknown"
	}
	return u.Name
}

// FormatTimestamp renders t in loc using TimestampLayout.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimestampLayout)
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
