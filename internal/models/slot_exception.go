package models

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/pkg/timeofday"
)

// ExceptionType enumerates single-date overrides of a slot.
type ExceptionType string

const (
	ExceptionCancelled  ExceptionType = "CANCELLED"
	ExceptionMoved      ExceptionType = "MOVED"
	ExceptionRoomChange ExceptionType = "ROOM_CHANGE"
)

// Valid reports whether the type is known.
func (t ExceptionType) Valid() bool {
	switch t {
	case ExceptionCancelled, ExceptionMoved, ExceptionRoomChange:
		return true
	}
	return false
}

// SlotException overrides one slot on one calendar date.
type SlotException struct {
	ID           string            `db:"id" json:"id"`
	SlotID       string            `db:"slot_id" json:"slot_id"`
	Date         time.Time         `db:"exception_date" json:"date"`
	Type         ExceptionType     `db:"type" json:"type"`
	NewRoomID    *string           `db:"new_room_id" json:"new_room_id,omitempty"`
	NewTeacherID *string           `db:"new_teacher_id" json:"new_teacher_id,omitempty"`
	NewStartTime *timeofday.Minute `db:"new_start_minute" json:"new_start_time,omitempty"`
	NewEndTime   *timeofday.Minute `db:"new_end_minute" json:"new_end_time,omitempty"`
	Note         string            `db:"note" json:"note"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// Occurrence is what actually happens for a slot on a concrete date.
type Occurrence struct {
	SlotID        string           `json:"slot_id"`
	TimetableID   string           `json:"timetable_id"`
	Date          time.Time        `json:"date"`
	Target        SlotTarget       `json:"target"`
	SubjectID     string           `json:"subject_id"`
	TeacherID     string           `json:"teacher_id"`
	RoomID        *string          `json:"room_id,omitempty"`
	StartTime     timeofday.Minute `json:"start_time"`
	EndTime       timeofday.Minute `json:"end_time"`
	Cancelled     bool             `json:"cancelled"`
	ExceptionID   *string          `json:"exception_id,omitempty"`
	ExceptionType *ExceptionType   `json:"exception_type,omitempty"`
	Note          string           `json:"note,omitempty"`
}
