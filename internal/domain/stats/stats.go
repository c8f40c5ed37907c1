// Package stats derives dashboard numbers from the store's snapshot. Every
// function is pure and cheap enough to run on each read.
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rehab/rehab/internal/domain/rehab"
)

// HighLoadThreshold is the workload at which a buddy stops taking patients.
const HighLoadThreshold = 5

// activeSessionWeight makes a booked session count twice as much as an idle
// patient assignment.
const activeSessionWeight = 2

const (
	StatusHighLoad  = "High Load"
	StatusAvailable = "Available"
)

// Workload summarizes how busy a buddy currently is.
type Workload struct {
	BuddyID          string `json:"buddyId"`
	AssignedPatients int    `json:"assignedPatients"`
	ActiveSessions   int    `json:"activeSessions"`
	Total            int    `json:"totalWorkload"`
	Status           string `json:"status"`
}

// WorkloadScore combines assignment and session counts into one number.
func WorkloadScore(assignedPatients, activeSessions int) int {
	return assignedPatients + activeSessionWeight*activeSessions
}

// WorkloadStatus buckets a workload score.
func WorkloadStatus(total int) string {
	if total >= HighLoadThreshold {
		return StatusHighLoad
	}
	return StatusAvailable
}

// BuddyWorkload counts the active patients assigned to buddyID and the
// buddy's scheduled or in-progress sessions.
func BuddyWorkload(patients []rehab.Patient, sessions []rehab.Session, buddyID string) Workload {
	w := Workload{BuddyID: buddyID}
	for _, p := range patients {
		if p.AssignedBuddy == buddyID && p.IsActive() {
			w.AssignedPatients++
		}
	}
	for _, s := range sessions {
		if s.BuddyID == buddyID && s.Active() {
			w.ActiveSessions++
		}
	}
	w.Total = WorkloadScore(w.AssignedPatients, w.ActiveSessions)
	w.Status = WorkloadStatus(w.Total)
	return w
}

// TierBucket is one slice of the tier distribution.
type TierBucket struct {
	Tier       rehab.Tier `json:"tier"`
	Count      int        `json:"count"`
	Percentage float64    `json:"percentage"`
}

type TierDistribution struct {
	Total   int          `json:"total"`
	Buckets []TierBucket `json:"buckets"`
}

// DistributeTiers partitions buddies by tier. Buddies without a recognised
// tier count as Bronze, the tier every buddy starts at.
func DistributeTiers(buddies []rehab.User) TierDistribution {
	counts := make(map[rehab.Tier]int, len(rehab.Tiers))
	for _, b := range buddies {
		t := b.Tier
		if t.Rank() == 0 {
			t = rehab.TierBronze
		}
		counts[t]++
	}
	d := TierDistribution{Total: len(buddies)}
	for _, t := range rehab.Tiers {
		b := TierBucket{Tier: t, Count: counts[t]}
		if d.Total > 0 {
			b.Percentage = round1(float64(b.Count) / float64(d.Total) * 100)
		}
		d.Buckets = append(d.Buckets, b)
	}
	return d
}

// TimeRange selects how far back rating aggregates look.
type TimeRange string

const (
	Last7Days  TimeRange = "7days"
	Last30Days TimeRange = "30days"
	Last90Days TimeRange = "90days"
	AllTime    TimeRange = "all"
)

// ParseTimeRange accepts the query-string spellings; empty means AllTime.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case Last7Days, Last30Days, Last90Days, AllTime:
		return TimeRange(s), nil
	case "":
		return AllTime, nil
	}
	return "", fmt.Errorf("unknown time range %q", s)
}

// Cutoff returns the earliest included instant, or false for AllTime.
func (r TimeRange) Cutoff(now time.Time) (time.Time, bool) {
	days := 0
	switch r {
	case Last7Days:
		days = 7
	case Last30Days:
		days = 30
	case Last90Days:
		days = 90
	default:
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -days), true
}

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// trendWindow is how many of the most recent ratings make up "recent".
const trendWindow = 10

// RatingAggregate is the rating picture for one buddy over a time range.
type RatingAggregate struct {
	BuddyID          string      `json:"buddyId"`
	TotalRatings     int         `json:"totalRatings"`
	AverageRating    float64     `json:"averageRating"`
	RatingBreakdown  map[int]int `json:"ratingBreakdown"`
	SatisfactionRate float64     `json:"satisfactionRate"`
	RecentAverage    float64     `json:"recentAverage"`
	Trend            Trend       `json:"trend"`
}

type rated struct {
	rating int
	when   time.Time
}

// AggregateRatings summarizes the completed, rated sessions of buddyID within
// the range. It returns false when there is nothing to summarize; callers omit
// such buddies rather than reporting a zero rating.
func AggregateRatings(sessions []rehab.Session, buddyID string, r TimeRange, now time.Time) (RatingAggregate, bool) {
	cutoff, bounded := r.Cutoff(now)
	var picked []rated
	for _, s := range sessions {
		if s.BuddyID != buddyID || !s.Rated() {
			continue
		}
		rating := *s.PatientRating
		if rating < 1 || rating > 5 {
			continue
		}
		when, ok := s.When()
		if bounded && (!ok || when.Before(cutoff)) {
			continue
		}
		picked = append(picked, rated{rating: rating, when: when})
	}
	if len(picked) == 0 {
		return RatingAggregate{}, false
	}

	agg := RatingAggregate{
		BuddyID:         buddyID,
		TotalRatings:    len(picked),
		RatingBreakdown: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	sum, satisfied := 0, 0
	for _, p := range picked {
		sum += p.rating
		agg.RatingBreakdown[p.rating]++
		if p.rating >= 4 {
			satisfied++
		}
	}
	agg.AverageRating = round1(float64(sum) / float64(len(picked)))
	agg.SatisfactionRate = math.Round(float64(satisfied) / float64(len(picked)) * 100)

	sort.SliceStable(picked, func(i, j int) bool { return picked[i].when.After(picked[j].when) })
	recent := picked
	if len(recent) > trendWindow {
		recent = recent[:trendWindow]
	}
	recentSum := 0
	for _, p := range recent {
		recentSum += p.rating
	}
	agg.RecentAverage = round1(float64(recentSum) / float64(len(recent)))
	agg.Trend = compareMeans(recentSum, len(recent), sum, len(picked))
	return agg, true
}

// compareMeans compares a/n with b/m using integer cross-multiplication so
// identical sets of ratings always compare equal.
func compareMeans(a, n, b, m int) Trend {
	left, right := a*m, b*n
	switch {
	case left > right:
		return TrendUp
	case left < right:
		return TrendDown
	}
	return TrendStable
}

// ClassifyTier maps rating quality onto a tier. Gold is checked before Silver.
func ClassifyTier(averageRating, satisfactionRate float64) rehab.Tier {
	switch {
	case averageRating >= 4.5 && satisfactionRate >= 90:
		return rehab.TierGold
	case averageRating >= 4.0 && satisfactionRate >= 80:
		return rehab.TierSilver
	}
	return rehab.TierBronze
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
