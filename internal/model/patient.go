package model

import (
	"time"
)

// Gender values accepted on a patient profile. Empty means not provided.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Patient is the root of the health record tree. Its ID equals the owning
// user's ID.
type Patient struct {
	Base
	FullName              string     `db:"full_name" json:"full_name" validate:"required,min=1,max=100"`
	Email                 string     `db:"email" json:"email" validate:"omitempty,email,max=255"`
	Phone                 string     `db:"phone" json:"phone" validate:"max=20"`
	DateOfBirth           *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender                string     `db:"gender" json:"gender" validate:"omitempty,oneof=male female other"`
	Address               string     `db:"address" json:"address" validate:"max=500"`
	BloodType             string     `db:"blood_type" json:"blood_type" validate:"max=10"`
	Allergies             string     `db:"allergies" json:"allergies" validate:"max=1000"`
	ChronicConditions     string     `db:"chronic_conditions" json:"chronic_conditions" validate:"max=1000"`
	EmergencyContactName  string     `db:"emergency_contact_name" json:"emergency_contact_name" validate:"max=100"`
	EmergencyContactPhone string     `db:"emergency_contact_phone" json:"emergency_contact_phone" validate:"max=20"`
}

// PatientRequest is merged into an existing profile; nil fields are left alone.
type PatientRequest struct {
	FullName              *string    `json:"full_name" binding:"omitempty,min=1,max=100"`
	Email                 *string    `json:"email" binding:"omitempty,email,max=255"`
	Phone                 *string    `json:"phone" binding:"omitempty,max=20"`
	DateOfBirth           *time.Time `json:"date_of_birth"`
	Gender                *string    `json:"gender" binding:"omitempty,oneof=male female other"`
	Address               *string    `json:"address" binding:"omitempty,max=500"`
	BloodType             *string    `json:"blood_type" binding:"omitempty,max=10"`
	Allergies             *string    `json:"allergies" binding:"omitempty,max=1000"`
	ChronicConditions     *string    `json:"chronic_conditions" binding:"omitempty,max=1000"`
	EmergencyContactName  *string    `json:"emergency_contact_name" binding:"omitempty,max=100"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone" binding:"omitempty,max=20"`
}

// Apply merges the non-nil request fields into p.
func (r *PatientRequest) Apply(p *Patient) {
	setString(&p.FullName, r.FullName)
	setString(&p.Email, r.Email)
	setString(&p.Phone, r.Phone)
	if r.DateOfBirth != nil {
		dob := *r.DateOfBirth
		p.DateOfBirth = &dob
	}
	setString(&p.Gender, r.Gender)
	setString(&p.Address, r.Address)
	setString(&p.BloodType, r.BloodType)
	setString(&p.Allergies, r.Allergies)
	setString(&p.ChronicConditions, r.ChronicConditions)
	setString(&p.EmergencyContactName, r.EmergencyContactName)
	setString(&p.EmergencyContactPhone, r.EmergencyContactPhone)
}

// PatientFilter narrows patient listings. Page and PageSize only shape the
// HTTP response; repositories ignore them.
type PatientFilter struct {
	SearchTerm string `form:"q"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=200"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
