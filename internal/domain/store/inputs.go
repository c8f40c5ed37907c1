package store

import (
	"github.com/rehab/rehab/internal/domain/rehab"
)

// NewUser is the input to AddUser. When Password is set a login account is
// created first and its uid becomes the user id.
type NewUser struct {
	Email          string `json:"email" validate:"required,rehab_email"`
	Name           string `json:"name" validate:"required,max=100"`
	Role           string `json:"role" validate:"required,rehab_role"`
	Tier           string `json:"tier,omitempty" validate:"omitempty,rehab_tier"`
	Phone          string `json:"phone,omitempty" validate:"max=30"`
	Specialization string `json:"specialization,omitempty" validate:"max=100"`
	Password       string `json:"password,omitempty" validate:"omitempty,min=6"`
}

// UserPatch lists the editable user fields; nil fields are left unchanged.
type UserPatch struct {
	Email          *string `json:"email,omitempty" validate:"omitempty,rehab_email"`
	Name           *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Role           *string `json:"role,omitempty" validate:"omitempty,rehab_role"`
	Tier           *string `json:"tier,omitempty" validate:"omitempty,rehab_tier"`
	Status         *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	Phone          *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	Specialization *string `json:"specialization,omitempty" validate:"omitempty,max=100"`
}

// NewPatient is the input to AddPatient.
type NewPatient struct {
	Email          string          `json:"email" validate:"required,rehab_email"`
	Name           string          `json:"name" validate:"required,max=100"`
	Password       string          `json:"password" validate:"required,min=6"`
	Phone          string          `json:"phone,omitempty" validate:"max=30"`
	DateOfBirth    string          `json:"dateOfBirth,omitempty" validate:"omitempty,rehab_date"`
	Condition      string          `json:"condition,omitempty" validate:"max=500"`
	AssignedDoctor string          `json:"assignedDoctor,omitempty"`
	AssignedNurse  string          `json:"assignedNurse,omitempty"`
	AssignedBuddy  string          `json:"assignedBuddy,omitempty"`
	CarePlan       *rehab.CarePlan `json:"carePlan,omitempty"`
}

// PatientPatch lists the editable patient fields; nil fields are left unchanged.
type PatientPatch struct {
	Email          *string         `json:"email,omitempty" validate:"omitempty,rehab_email"`
	Name           *string         `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Phone          *string         `json:"phone,omitempty" validate:"omitempty,max=30"`
	Status         *string         `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	DateOfBirth    *string         `json:"dateOfBirth,omitempty" validate:"omitempty,rehab_date"`
	Condition      *string         `json:"condition,omitempty" validate:"omitempty,max=500"`
	AssignedDoctor *string         `json:"assignedDoctor,omitempty"`
	AssignedNurse  *string         `json:"assignedNurse,omitempty"`
	AssignedBuddy  *string         `json:"assignedBuddy,omitempty"`
	CarePlan       *rehab.CarePlan `json:"carePlan,omitempty"`
}

// ProgressUpdate is a progress submission by a patient, buddy or staff member.
// Dimensions are percentages. RequestedBy is the submitter's role; staff
// submissions are recorded under their own role.
type ProgressUpdate struct {
	PhysicalProgress  float64 `json:"physicalProgress" validate:"min=0,max=100"`
	MentalProgress    float64 `json:"mentalProgress" validate:"min=0,max=100"`
	EmotionalProgress float64 `json:"emotionalProgress" validate:"min=0,max=100"`
	SocialProgress    float64 `json:"socialProgress" validate:"min=0,max=100"`
	UpdatedBy         string  `json:"updatedBy" validate:"required"`
	RequestedBy       string  `json:"requestedBy,omitempty" validate:"omitempty,oneof=patient buddy nurse doctor admin"`
	Notes             string  `json:"notes,omitempty" validate:"max=1000"`
}

// ProgressDecision is a doctor's verdict on pending progress.
type ProgressDecision struct {
	ApprovalStatus string `json:"approvalStatus" validate:"required,oneof=approved rejected"`
	ApprovedBy     string `json:"approvedBy" validate:"required"`
	Notes          string `json:"notes,omitempty" validate:"max=1000"`
}

// NewSession is the input to AddSession. Status defaults to scheduled.
type NewSession struct {
	PatientID  string   `json:"patientId" validate:"required"`
	BuddyID    string   `json:"buddyId" validate:"required"`
	NurseID    string   `json:"nurseId,omitempty"`
	Date       string   `json:"date" validate:"required,rehab_date"`
	Time       string   `json:"time,omitempty" validate:"omitempty,rehab_time"`
	Duration   int      `json:"duration,omitempty" validate:"min=0,max=480"`
	Type       string   `json:"type,omitempty" validate:"max=50"`
	Activities []string `json:"activities,omitempty"`
	Status     string   `json:"status,omitempty" validate:"omitempty,oneof=scheduled in-progress completed cancelled"`
	Notes      string   `json:"notes,omitempty" validate:"max=1000"`
}

// SessionPatch lists the editable session fields; nil fields are left unchanged.
type SessionPatch struct {
	BuddyID        *string   `json:"buddyId,omitempty" validate:"omitempty,min=1"`
	NurseID        *string   `json:"nurseId,omitempty"`
	Date           *string   `json:"date,omitempty" validate:"omitempty,rehab_date"`
	Time           *string   `json:"time,omitempty" validate:"omitempty,rehab_time"`
	Duration       *int      `json:"duration,omitempty" validate:"omitempty,min=0,max=480"`
	Type           *string   `json:"type,omitempty" validate:"omitempty,max=50"`
	Activities     *[]string `json:"activities,omitempty"`
	Status         *string   `json:"status,omitempty" validate:"omitempty,oneof=scheduled in-progress completed cancelled"`
	DoctorFeedback *string   `json:"doctorFeedback,omitempty" validate:"omitempty,max=1000"`
	Notes          *string   `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// SessionRating is a patient's rating of a completed session.
type SessionRating struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback,omitempty" validate:"max=1000"`
}

// FeedbackInput is a remark left on a user's profile.
type FeedbackInput struct {
	From     string `json:"from" validate:"required"`
	Positive bool   `json:"positive"`
	Comment  string `json:"comment,omitempty" validate:"max=1000"`
}

// CarePlanInput creates a care plan record and attaches it to the patient.
type CarePlanInput struct {
	PatientID   string             `json:"patientId" validate:"required"`
	CreatedBy   string             `json:"createdBy" validate:"required"`
	Goals       []string           `json:"goals,omitempty"`
	Exercises   []rehab.Exercise   `json:"exercises,omitempty"`
	Medications []rehab.Medication `json:"medications,omitempty"`
	Timeline    string             `json:"timeline,omitempty" validate:"max=200"`
	Notes       string             `json:"notes,omitempty" validate:"max=2000"`
}

func (in CarePlanInput) plan() rehab.CarePlan {
	return rehab.CarePlan{
		Goals:       in.Goals,
		Exercises:   in.Exercises,
		Medications: in.Medications,
		Timeline:    in.Timeline,
		Notes:       in.Notes,
	}
}
