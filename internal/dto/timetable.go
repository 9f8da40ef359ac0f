package dto

// CreateTimetableRequest registers a timetable for an academic year.
type CreateTimetableRequest struct {
	AcademicYearID string `json:"academic_year_id" validate:"required"`
	Name           string `json:"name" validate:"required,max=120"`
	Activate       bool   `json:"activate"`
}

// RenameTimetableRequest changes the display name of a timetable.
type RenameTimetableRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

// CreateSlotRequest describes a recurring weekly slot. Exactly one of ClassID or GroupID must be set.
type CreateSlotRequest struct {
	ClassID     string  `json:"class_id"`
	GroupID     string  `json:"group_id"`
	SubjectID   string  `json:"subject_id" validate:"required"`
	TeacherID   string  `json:"teacher_id" validate:"required"`
	RoomID      *string `json:"room_id" validate:"omitempty,min=1"`
	DayOfWeek   *int    `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime   string  `json:"start_time" validate:"required,hhmm"`
	EndTime     string  `json:"end_time" validate:"required,hhmm"`
	WeekPattern string  `json:"week_pattern" validate:"omitempty,oneof=ALL A B"`
	StartDate   *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateSlotRequest patches a slot. Nil fields keep their stored value; an empty room_id clears the room
// and an empty start_date/end_date opens that side of the validity window.
type UpdateSlotRequest struct {
	ClassID     *string `json:"class_id" validate:"omitempty,min=1"`
	GroupID     *string `json:"group_id" validate:"omitempty,min=1"`
	SubjectID   *string `json:"subject_id" validate:"omitempty,min=1"`
	TeacherID   *string `json:"teacher_id" validate:"omitempty,min=1"`
	RoomID      *string `json:"room_id"`
	DayOfWeek   *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	StartTime   *string `json:"start_time" validate:"omitempty,hhmm"`
	EndTime     *string `json:"end_time" validate:"omitempty,hhmm"`
	WeekPattern *string `json:"week_pattern" validate:"omitempty,oneof=ALL A B"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
}

// UpsertExceptionRequest overrides a slot for a single date.
type UpsertExceptionRequest struct {
	Type         string  `json:"type" validate:"required,oneof=CANCELLED MOVED ROOM_CHANGE"`
	NewRoomID    *string `json:"new_room_id" validate:"omitempty,min=1"`
	NewTeacherID *string `json:"new_teacher_id" validate:"omitempty,min=1"`
	NewStartTime *string `json:"new_start_time" validate:"omitempty,hhmm"`
	NewEndTime   *string `json:"new_end_time" validate:"omitempty,hhmm"`
	Note         string  `json:"note" validate:"max=500"`
}
