package users

import (
	"time"
)

// Role distinguishes the two account types
type Role string

const (
	RolePatient   Role = "patient"
	RoleCaretaker Role = "caretaker"
)

// User is a directory entry. Caretakers and Patients are the two sides of
// the same symmetric relationship and are always updated together.
type User struct {
	ID           string `json:"id" gorm:"primaryKey"`
	Name         string `json:"name"`
	Email        string `json:"email" gorm:"uniqueIndex"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`

	Caretakers     []string `json:"caretakers,omitempty" gorm:"-"`
	Patients       []string `json:"patients,omitempty" gorm:"-"`
	CaretakersJSON string   `json:"-" gorm:"type:text"`
	PatientsJSON   string   `json:"-" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCaretaker reports whether the given user cares for this one
func (u *User) HasCaretaker(caretakerID string) bool {
	return contains(u.Caretakers, caretakerID)
}

// HasPatient reports whether this user cares for the given one
func (u *User) HasPatient(patientID string) bool {
	return contains(u.Patients, patientID)
}

// InviteStatus is the lifecycle of a caretaker invitation
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
)

// Invite is a pending request from a patient to a caretaker
type Invite struct {
	ID          string       `json:"id" gorm:"primaryKey"`
	PatientID   string       `json:"patient_id" gorm:"index"`
	CaretakerID string       `json:"caretaker_id" gorm:"index"`
	Status      InviteStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func remove(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
