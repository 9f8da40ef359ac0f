package models

import "time"

// Timetable is a named container of recurring slots scoped to one academic year.
type Timetable struct {
	ID             string    `db:"id" json:"id"`
	SchoolID       string    `db:"school_id" json:"school_id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	Name           string    `db:"name" json:"name"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// TimetableFilter narrows timetable listings.
type TimetableFilter struct {
	SchoolID       string
	AcademicYearID string
	IsActive       *bool
	Page           int
	PageSize       int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// AcademicYear is the school year a timetable belongs to.
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
}

// Contains reports whether the calendar date falls within the academic year.
func (y AcademicYear) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(y.StartDate)) && !d.After(DateOnly(y.EndDate))
}

// WeekPatternOn returns the fortnight week (A or B) of the date. The week holding StartDate is week A.
func (y AcademicYear) WeekPatternOn(date time.Time) WeekPattern {
	anchor := mondayOf(DateOnly(y.StartDate))
	target := mondayOf(DateOnly(date))
	weeks := int(target.Sub(anchor).Hours() / 24 / 7)
	if weeks%2 == 0 {
		return WeekPatternA
	}
	return WeekPatternB
}

// DayOfWeek maps a date onto the Monday-first index used by slots.
func DayOfWeek(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}

// DateOnly truncates a timestamp to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mondayOf(date time.Time) time.Time {
	return date.AddDate(0, 0, -DayOfWeek(date))
}
