package models

// ReferenceKind names an entity the scheduling core references but does not own.
type ReferenceKind string

const (
	ReferenceTeacher ReferenceKind = "teacher"
	ReferenceClass   ReferenceKind = "class"
	ReferenceGroup   ReferenceKind = "student group"
	ReferenceRoom    ReferenceKind = "room"
	ReferenceSubject ReferenceKind = "subject"
)
