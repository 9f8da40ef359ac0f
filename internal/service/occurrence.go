package service

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Resolve applies an optional exception to the slot's recurring pattern for one date.
func Resolve(slot models.TimetableSlot, date time.Time, exception *models.SlotException) models.Occurrence {
	occurrence := models.Occurrence{
		SlotID:      slot.ID,
		TimetableID: slot.TimetableID,
		Date:        models.DateOnly(date),
		Target:      slot.Target,
		SubjectID:   slot.SubjectID,
		TeacherID:   slot.TeacherID,
		RoomID:      slot.RoomID,
		StartTime:   slot.StartTime,
		EndTime:     slot.EndTime,
	}
	if exception == nil {
		return occurrence
	}

	id := exception.ID
	kind := exception.Type
	occurrence.ExceptionID = &id
	occurrence.ExceptionType = &kind
	occurrence.Note = exception.Note

	switch exception.Type {
	case models.ExceptionCancelled:
		occurrence.Cancelled = true
	case models.ExceptionMoved:
		if exception.NewRoomID != nil {
			room := *exception.NewRoomID
			occurrence.RoomID = &room
		}
		if exception.NewTeacherID != nil {
			occurrence.TeacherID = *exception.NewTeacherID
		}
		if exception.NewStartTime != nil && exception.NewEndTime != nil {
			occurrence.StartTime = *exception.NewStartTime
			occurrence.EndTime = *exception.NewEndTime
		}
	case models.ExceptionRoomChange:
		if exception.NewRoomID != nil {
			room := *exception.NewRoomID
			occurrence.RoomID = &room
		}
	}
	return occurrence
}

// OccursOn reports whether the slot recurs on the date: the weekday matches, the date lies inside the
// academic year and the slot's own window, and the fortnight week matches the slot's pattern.
func OccursOn(slot models.TimetableSlot, year models.AcademicYear, date time.Time) bool {
	if models.DayOfWeek(date) != slot.DayOfWeek {
		return false
	}
	if !year.Contains(date) || !slot.ActiveOn(date) {
		return false
	}
	if slot.WeekPattern == models.WeekPatternAll {
		return true
	}
	return year.WeekPatternOn(date) == slot.WeekPattern
}
