package stats

import (
	"sort"
	"time"

	"github.com/rehab/rehab/internal/domain/rehab"
)

// recentFeedbackLimit caps the feedback entries attached to a performance row.
const recentFeedbackLimit = 5

// Performance is one leaderboard row.
type Performance struct {
	RatingAggregate
	Name           string           `json:"name"`
	CurrentTier    rehab.Tier       `json:"currentTier"`
	SuggestedTier  rehab.Tier       `json:"suggestedTier"`
	Workload       Workload         `json:"workload"`
	RecentFeedback []rehab.Feedback `json:"recentFeedback,omitempty"`
}

// BuddyPerformance builds the performance row for one buddy, or false when the
// buddy has no rated sessions in the range.
func BuddyPerformance(snap rehab.Snapshot, buddy rehab.User, r TimeRange, now time.Time) (Performance, bool) {
	agg, ok := AggregateRatings(snap.Sessions, buddy.ID, r, now)
	if !ok {
		return Performance{}, false
	}
	return Performance{
		RatingAggregate: agg,
		Name:            buddy.Label(),
		CurrentTier:     buddy.Tier,
		SuggestedTier:   ClassifyTier(agg.AverageRating, agg.SatisfactionRate),
		Workload:        BuddyWorkload(snap.Patients, snap.Sessions, buddy.ID),
		RecentFeedback:  latestFeedback(buddy.Feedback, recentFeedbackLimit),
	}, true
}

// Leaderboard ranks buddies by average rating, highest first. The sort is
// stable, so equal ratings keep roster order. Buddies without ratings in the
// range are left out.
func Leaderboard(snap rehab.Snapshot, r TimeRange, now time.Time) []Performance {
	out := []Performance{}
	for _, b := range snap.Buddies() {
		if p, ok := BuddyPerformance(snap, b, r, now); ok {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AverageRating > out[j].AverageRating
	})
	return out
}

func latestFeedback(all []rehab.Feedback, n int) []rehab.Feedback {
	if len(all) == 0 {
		return nil
	}
	cp := append([]rehab.Feedback(nil), all...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Date.After(cp[j].Date) })
	if len(cp) > n {
		cp = cp[:n]
	}
	return cp
}

// Overview computes the admin dashboard counts.
func Overview(snap rehab.Snapshot) rehab.Overview {
	o := rehab.Overview{
		TotalUsers:       len(snap.Users),
		TotalPatients:    len(snap.Patients),
		SessionsByStatus: map[string]int{},
	}
	for _, u := range snap.Users {
		if !u.IsActive() {
			continue
		}
		switch u.Role {
		case rehab.RoleDoctor:
			o.Doctors++
		case rehab.RoleNurse:
			o.Nurses++
		case rehab.RoleBuddy:
			o.ActiveBuddies++
		}
	}
	var progressSum float64
	progressCount := 0
	for _, p := range snap.Patients {
		if !p.IsActive() {
			continue
		}
		o.ActivePatients++
		if p.AssignedBuddy == "" {
			o.UnassignedPatients++
		}
		o.PendingApprovals += p.PendingRequests()
		if p.OverallProgress != nil {
			progressSum += p.OverallProgress.OverallPercentage
			progressCount++
		}
	}
	if progressCount > 0 {
		o.AverageProgress = round1(progressSum / float64(progressCount))
	}
	for _, s := range snap.Sessions {
		o.SessionsByStatus[s.Status]++
	}
	return o
}

// PatientSummary is the per-patient view shown to care staff.
type PatientSummary struct {
	PatientID         string          `json:"patientId"`
	Name              string          `json:"name"`
	AssignedBuddy     string          `json:"assignedBuddy,omitempty"`
	SessionsCompleted int             `json:"sessionsCompleted"`
	SessionsUpcoming  int             `json:"sessionsUpcoming"`
	AverageRating     float64         `json:"averageRatingGiven"`
	Progress          *rehab.Progress `json:"progress,omitempty"`
	PendingApprovals  int             `json:"pendingApprovals"`
}

// SummarizePatient reports session and progress figures for one patient.
func SummarizePatient(snap rehab.Snapshot, p rehab.Patient) PatientSummary {
	sum := PatientSummary{
		PatientID:        p.ID,
		Name:             p.Label(),
		AssignedBuddy:    p.AssignedBuddy,
		Progress:         p.OverallProgress,
		PendingApprovals: p.PendingRequests(),
	}
	ratingSum, ratings := 0, 0
	for _, s := range snap.Sessions {
		if s.PatientID != p.ID {
			continue
		}
		switch {
		case s.Status == rehab.SessionCompleted:
			sum.SessionsCompleted++
			if s.PatientRating != nil {
				ratingSum += *s.PatientRating
				ratings++
			}
		case s.Active():
			sum.SessionsUpcoming++
		}
	}
	if ratings > 0 {
		sum.AverageRating = round1(float64(ratingSum) / float64(ratings))
	}
	return sum
}
