package rehab

import (
	"time"
)

// User status values. Users are never hard-deleted; removal flips them to inactive.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Session status values. Cancellation is a soft delete.
const (
	SessionScheduled  = "scheduled"
	SessionInProgress = "in-progress"
	SessionCompleted  = "completed"
	SessionCancelled  = "cancelled"
)

// Progress approval values carried on Patient.OverallProgress.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// RequestPendingApproval is the initial state of an ApprovalRequest.
const RequestPendingApproval = "pending_approval"

// Feedback is a single remark left on a user's profile, usually a buddy.
type Feedback struct {
	From     string    `json:"from"`
	Positive bool      `json:"positive"`
	Comment  string    `json:"comment,omitempty"`
	Date     time.Time `json:"date"`
}

// User is a staff member or patient as stored in the users collection.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name,omitempty"`
	DisplayName    string     `json:"displayName,omitempty"`
	Role           Role       `json:"role"`
	Tier           Tier       `json:"tier,omitempty"`
	Status         string     `json:"status,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Specialization string     `json:"specialization,omitempty"`
	Feedback       []Feedback `json:"feedback,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// Label returns the best human-readable name for the user.
func (u User) Label() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.DisplayName != "":
		return u.DisplayName
	}
	return u.Email
}

// IsActive reports whether the user has not been deactivated. Legacy
// documents without a status are treated as active.
func (u User) IsActive() bool {
	return u.Status == "" || u.Status == StatusActive
}

// IsBuddy reports whether the user holds the medical buddy role.
func (u User) IsBuddy() bool { return u.Role == RoleBuddy }

type Exercise struct {
	Name      string `json:"name"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// CarePlan is the treatment plan embedded in a patient document.
type CarePlan struct {
	Goals       []string     `json:"goals,omitempty"`
	Exercises   []Exercise   `json:"exercises,omitempty"`
	Medications []Medication `json:"medications,omitempty"`
	Timeline    string       `json:"timeline,omitempty"`
	Notes       string       `json:"notes,omitempty"`
}

// Progress tracks a patient's recovery across four dimensions, each 0..100.
type Progress struct {
	PhysicalProgress  float64    `json:"physicalProgress"`
	MentalProgress    float64    `json:"mentalProgress"`
	EmotionalProgress float64    `json:"emotionalProgress"`
	SocialProgress    float64    `json:"socialProgress"`
	OverallPercentage float64    `json:"overallPercentage"`
	ApprovalStatus    string     `json:"approvalStatus,omitempty"`
	LastUpdatedBy     string     `json:"lastUpdatedBy,omitempty"`
	LastUpdated       *time.Time `json:"lastUpdated,omitempty"`
	LastApprovedBy    string     `json:"lastApprovedBy,omitempty"`
	ApprovalDate      *time.Time `json:"approvalDate,omitempty"`
	ApprovalNotes     string     `json:"approvalNotes,omitempty"`
}

// OverallOf returns the arithmetic mean of the four progress dimensions.
func OverallOf(physical, mental, emotional, social float64) float64 {
	return (physical + mental + emotional + social) / 4
}

// ProgressData is the snapshot submitted with an approval request.
type ProgressData struct {
	PhysicalProgress  float64 `json:"physicalProgress"`
	MentalProgress    float64 `json:"mentalProgress"`
	EmotionalProgress float64 `json:"emotionalProgress"`
	SocialProgress    float64 `json:"socialProgress"`
	OverallPercentage float64 `json:"overallPercentage"`
	Notes             string  `json:"notes,omitempty"`
}

// ApprovalRequest is a progress update awaiting a doctor's decision.
type ApprovalRequest struct {
	ID            string       `json:"id"`
	RequestedBy   string       `json:"requestedBy"`
	RequesterID   string       `json:"requesterId,omitempty"`
	Data          ProgressData `json:"data"`
	Status        string       `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	ApprovedBy    string       `json:"approvedBy,omitempty"`
	ApprovalDate  *time.Time   `json:"approvalDate,omitempty"`
	ApprovalNotes string       `json:"approvalNotes,omitempty"`
}

// Resolved reports whether a doctor has already decided on the request.
func (r ApprovalRequest) Resolved() bool {
	return r.Status == ApprovalApproved || r.Status == ApprovalRejected
}

// Patient is a User with care-team references, a care plan and progress.
// The assigned* fields are weak references resolved by id lookups.
type Patient struct {
	User
	DateOfBirth      string            `json:"dateOfBirth,omitempty"`
	Condition        string            `json:"condition,omitempty"`
	AssignedDoctor   string            `json:"assignedDoctor,omitempty"`
	AssignedNurse    string            `json:"assignedNurse,omitempty"`
	AssignedBuddy    string            `json:"assignedBuddy,omitempty"`
	CarePlan         *CarePlan         `json:"carePlan,omitempty"`
	OverallProgress  *Progress         `json:"overallProgress,omitempty"`
	ApprovalRequests []ApprovalRequest `json:"approvalRequests,omitempty"`
}

// PendingRequests counts approval requests still awaiting a decision.
func (p Patient) PendingRequests() int {
	n := 0
	for _, r := range p.ApprovalRequests {
		if r.Status == RequestPendingApproval {
			n++
		}
	}
	return n
}

// Session is a therapy session between a patient and a buddy.
type Session struct {
	ID              string     `json:"id"`
	PatientID       string     `json:"patientId"`
	BuddyID         string     `json:"buddyId"`
	NurseID         string     `json:"nurseId,omitempty"`
	Date            string     `json:"date"`
	Time            string     `json:"time,omitempty"`
	Duration        int        `json:"duration,omitempty"`
	Type            string     `json:"type,omitempty"`
	Activities      []string   `json:"activities,omitempty"`
	Status          string     `json:"status"`
	PatientRating   *int       `json:"patientRating,omitempty"`
	PatientFeedback string     `json:"patientFeedback,omitempty"`
	DoctorFeedback  string     `json:"doctorFeedback,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
}

// Active reports whether the session still occupies the buddy's calendar.
func (s Session) Active() bool {
	return s.Status == SessionScheduled || s.Status == SessionInProgress
}

// Rated reports whether the session is completed and carries a patient rating.
func (s Session) Rated() bool {
	return s.Status == SessionCompleted && s.PatientRating != nil
}

// When returns the parsed session date, or false if it cannot be parsed.
func (s Session) When() (time.Time, bool) {
	t, err := ParseDate(s.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CarePlanRecord is a care plan as stored in its own collection.
type CarePlanRecord struct {
	ID        string     `json:"id"`
	PatientID string     `json:"patientId"`
	CreatedBy string     `json:"createdBy"`
	Status    string     `json:"status,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	CarePlan
}

// Overview holds the headline counts shown on the admin dashboard.
type Overview struct {
	TotalUsers         int            `json:"totalUsers"`
	TotalPatients      int            `json:"totalPatients"`
	ActivePatients     int            `json:"activePatients"`
	Doctors            int            `json:"doctors"`
	Nurses             int            `json:"nurses"`
	ActiveBuddies      int            `json:"activeBuddies"`
	UnassignedPatients int            `json:"unassignedPatients"`
	SessionsByStatus   map[string]int `json:"sessionsByStatus"`
	PendingApprovals   int            `json:"pendingApprovals"`
	AverageProgress    float64        `json:"averageProgress"`
}
