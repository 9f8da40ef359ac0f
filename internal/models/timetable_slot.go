package models

import (
	"fmt"
	"time"

	"github.com/noah-isme/sma-timetable-api/pkg/timeofday"
)

// WeekPattern selects the weeks a slot recurs in. A and B alternate fortnightly.
type WeekPattern string

const (
	WeekPatternAll WeekPattern = "ALL"
	WeekPatternA   WeekPattern = "A"
	WeekPatternB   WeekPattern = "B"
)

// Valid reports whether the pattern is known.
func (p WeekPattern) Valid() bool {
	switch p {
	case WeekPatternAll, WeekPatternA, WeekPatternB:
		return true
	}
	return false
}

// ConflictsWith is true unless the two patterns are exactly A and B.
func (p WeekPattern) ConflictsWith(other WeekPattern) bool {
	if (p == WeekPatternA && other == WeekPatternB) || (p == WeekPatternB && other == WeekPatternA) {
		return false
	}
	return true
}

// SlotTargetKind names who attends a slot.
type SlotTargetKind string

const (
	SlotTargetClass SlotTargetKind = "CLASS"
	SlotTargetGroup SlotTargetKind = "GROUP"
)

// SlotTarget is either a class or a student group, never both.
type SlotTarget struct {
	Kind SlotTargetKind `json:"kind"`
	ID   string         `json:"id"`
}

// ClassTarget builds a class target.
func ClassTarget(id string) SlotTarget {
	return SlotTarget{Kind: SlotTargetClass, ID: id}
}

// GroupTarget builds a student group target.
func GroupTarget(id string) SlotTarget {
	return SlotTarget{Kind: SlotTargetGroup, ID: id}
}

// NewSlotTarget resolves the class/group pair submitted by callers into a single target.
func NewSlotTarget(classID, groupID string) (SlotTarget, error) {
	switch {
	case classID != "" && groupID != "":
		return SlotTarget{}, fmt.Errorf("class_id and group_id are mutually exclusive")
	case classID != "":
		return ClassTarget(classID), nil
	case groupID != "":
		return GroupTarget(groupID), nil
	default:
		return SlotTarget{}, fmt.Errorf("one of class_id or group_id is required")
	}
}

// ClassID returns the class id when the target is a class.
func (t SlotTarget) ClassID() string {
	if t.Kind == SlotTargetClass {
		return t.ID
	}
	return ""
}

// GroupID returns the group id when the target is a student group.
func (t SlotTarget) GroupID() string {
	if t.Kind == SlotTargetGroup {
		return t.ID
	}
	return ""
}

// TimetableSlot is a recurring weekly assignment inside a timetable.
type TimetableSlot struct {
	ID          string           `json:"id"`
	TimetableID string           `json:"timetable_id"`
	Target      SlotTarget       `json:"target"`
	SubjectID   string           `json:"subject_id"`
	TeacherID   string           `json:"teacher_id"`
	RoomID      *string          `json:"room_id,omitempty"`
	DayOfWeek   int              `json:"day_of_week"`
	StartTime   timeofday.Minute `json:"start_time"`
	EndTime     timeofday.Minute `json:"end_time"`
	WeekPattern WeekPattern      `json:"week_pattern"`
	StartDate   *time.Time       `json:"start_date,omitempty"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Room returns the room id or an empty string.
func (s TimetableSlot) Room() string {
	if s.RoomID == nil {
		return ""
	}
	return *s.RoomID
}

// ActiveOn reports whether the validity window admits the date. Missing bounds are open.
func (s TimetableSlot) ActiveOn(date time.Time) bool {
	d := DateOnly(date)
	if s.StartDate != nil && d.Before(DateOnly(*s.StartDate)) {
		return false
	}
	if s.EndDate != nil && d.After(DateOnly(*s.EndDate)) {
		return false
	}
	return true
}

// SlotFilter narrows slot listings. Every field is optional.
type SlotFilter struct {
	ClassID   string
	GroupID   string
	TeacherID string
	RoomID    string
	DayOfWeek *int
}

// ConflictDimension names the resource that is double-booked.
type ConflictDimension string

const (
	ConflictTeacher ConflictDimension = "TEACHER"
	ConflictClass   ConflictDimension = "CLASS"
	ConflictRoom    ConflictDimension = "ROOM"
)

// SlotConflict describes one existing slot colliding with a candidate on one resource.
type SlotConflict struct {
	Dimension         ConflictDimension `json:"dimension"`
	ConflictingSlotID string            `json:"conflicting_slot_id"`
	ResourceID        string            `json:"resource_id"`
	DayOfWeek         int               `json:"day_of_week"`
	StartTime         timeofday.Minute  `json:"start_time"`
	EndTime           timeofday.Minute  `json:"end_time"`
	WeekPattern       WeekPattern       `json:"week_pattern"`
}

// SlotConflictError carries every conflict found for a rejected slot write.
type SlotConflictError struct {
	Message   string         `json:"message"`
	Conflicts []SlotConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *SlotConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// Dimensions lists the distinct colliding resource kinds in detection order.
func (e *SlotConflictError) Dimensions() []ConflictDimension {
	if e == nil {
		return nil
	}
	seen := make(map[ConflictDimension]struct{}, 3)
	var dims []ConflictDimension
	for _, c := range e.Conflicts {
		if _, ok := seen[c.Dimension]; ok {
			continue
		}
		seen[c.Dimension] = struct{}{}
		dims = append(dims, c.Dimension)
	}
	return dims
}
