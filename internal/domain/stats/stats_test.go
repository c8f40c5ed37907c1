package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/platform/auth"
)

var testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func rating(n int) *int { return &n }

func daysAgo(d int) string {
	return testNow.AddDate(0, 0, -d).Format("2006-01-02")
}

func ratedSession(id, buddy string, r, ago int) rehab.Session {
	return rehab.Session{ID: id, BuddyID: buddy, Date: daysAgo(ago), Status: rehab.SessionCompleted, PatientRating: rating(r)}
}

func TestWorkload_Score(t *testing.T) {
	patients := []rehab.Patient{
		{User: rehab.User{ID: "p1"}, AssignedBuddy: "b1"},
		{User: rehab.User{ID: "p2", Status: rehab.StatusInactive}, AssignedBuddy: "b1"},
		{User: rehab.User{ID: "p3"}, AssignedBuddy: "b2"},
	}
	sessions := []rehab.Session{
		{ID: "s1", BuddyID: "b1", Status: rehab.SessionScheduled},
		{ID: "s2", BuddyID: "b1", Status: rehab.SessionInProgress},
		{ID: "s3", BuddyID: "b1", Status: rehab.SessionCompleted},
		{ID: "s4", BuddyID: "b1", Status: rehab.SessionCancelled},
	}
	w := BuddyWorkload(patients, sessions, "b1")
	if w.AssignedPatients != 1 {
		t.Errorf("expected 1 assigned patient, got %d", w.AssignedPatients)
	}
	if w.ActiveSessions != 2 {
		t.Errorf("expected 2 active sessions, got %d", w.ActiveSessions)
	}
	if w.Total != 5 {
		t.Errorf("expected total 5, got %d", w.Total)
	}
	if w.Status != StatusHighLoad {
		t.Errorf("expected %q, got %q", StatusHighLoad, w.Status)
	}
}

func TestWorkloadStatus_Boundary(t *testing.T) {
	if WorkloadStatus(4) != StatusAvailable {
		t.Error("expected 4 to be available")
	}
	if WorkloadStatus(5) != StatusHighLoad {
		t.Error("expected 5 to be high load")
	}
}

func TestDistributeTiers(t *testing.T) {
	buddies := []rehab.User{
		{ID: "b1", Role: rehab.RoleBuddy, Tier: rehab.TierGold},
		{ID: "b2", Role: rehab.RoleBuddy, Tier: rehab.TierSilver},
		{ID: "b3", Role: rehab.RoleBuddy},
	}
	d := DistributeTiers(buddies)
	if d.Total != 3 || len(d.Buckets) != 3 {
		t.Fatalf("unexpected distribution: %+v", d)
	}
	want := map[rehab.Tier]int{rehab.TierBronze: 1, rehab.TierSilver: 1, rehab.TierGold: 1}
	for _, b := range d.Buckets {
		if b.Count != want[b.Tier] {
			t.Errorf("tier %s: expected %d, got %d", b.Tier, want[b.Tier], b.Count)
		}
		if b.Percentage != 33.3 {
			t.Errorf("tier %s: expected 33.3%%, got %v", b.Tier, b.Percentage)
		}
	}
}

func TestDistributeTiers_Empty(t *testing.T) {
	d := DistributeTiers(nil)
	for _, b := range d.Buckets {
		if b.Count != 0 || b.Percentage != 0 {
			t.Errorf("expected zero bucket, got %+v", b)
		}
	}
}

func TestParseTimeRange(t *testing.T) {
	for _, s := range []string{"7days", "30days", "90days", "all"} {
		if _, err := ParseTimeRange(s); err != nil {
			t.Errorf("%s: unexpected error: %v", s, err)
		}
	}
	if r, _ := ParseTimeRange(""); r != AllTime {
		t.Errorf("expected empty to mean all, got %s", r)
	}
	if _, err := ParseTimeRange("yesterday"); err == nil {
		t.Error("expected error for unknown range")
	}
}

func TestAggregateRatings_ThirtyDays(t *testing.T) {
	sessions := []rehab.Session{
		ratedSession("s1", "b1", 5, 1),
		ratedSession("s2", "b1", 5, 10),
		ratedSession("s3", "b1", 4, 20),
		ratedSession("s4", "b1", 1, 45),
		ratedSession("s5", "b2", 1, 2),
	}
	agg, ok := AggregateRatings(sessions, "b1", Last30Days, testNow)
	if !ok {
		t.Fatal("expected aggregate")
	}
	if agg.TotalRatings != 3 {
		t.Errorf("expected 3 ratings, got %d", agg.TotalRatings)
	}
	if agg.AverageRating != 4.7 {
		t.Errorf("expected average 4.7, got %v", agg.AverageRating)
	}
	if agg.SatisfactionRate != 100 {
		t.Errorf("expected satisfaction 100, got %v", agg.SatisfactionRate)
	}
	if agg.RatingBreakdown[5] != 2 || agg.RatingBreakdown[4] != 1 || agg.RatingBreakdown[1] != 0 {
		t.Errorf("unexpected breakdown: %v", agg.RatingBreakdown)
	}
	if agg.Trend != TrendStable {
		t.Errorf("expected stable trend with fewer than 10 ratings, got %s", agg.Trend)
	}
}

func TestAggregateRatings_IgnoresUnratedAndIncomplete(t *testing.T) {
	sessions := []rehab.Session{
		{ID: "s1", BuddyID: "b1", Date: daysAgo(1), Status: rehab.SessionCompleted},
		{ID: "s2", BuddyID: "b1", Date: daysAgo(1), Status: rehab.SessionScheduled, PatientRating: rating(5)},
	}
	if _, ok := AggregateRatings(sessions, "b1", AllTime, testNow); ok {
		t.Error("expected no aggregate without completed rated sessions")
	}
}

func TestAggregateRatings_Trend(t *testing.T) {
	var sessions []rehab.Session
	// Ten recent fives, five older ones.
	for i := 0; i < 10; i++ {
		sessions = append(sessions, ratedSession("new", "b1", 5, i+1))
	}
	for i := 0; i < 5; i++ {
		sessions = append(sessions, ratedSession("old", "b1", 2, 60+i))
	}
	agg, _ := AggregateRatings(sessions, "b1", AllTime, testNow)
	if agg.Trend != TrendUp {
		t.Errorf("expected up, got %s", agg.Trend)
	}
	if agg.RecentAverage != 5 {
		t.Errorf("expected recent average 5, got %v", agg.RecentAverage)
	}

	sessions = sessions[:0]
	for i := 0; i < 10; i++ {
		sessions = append(sessions, ratedSession("new", "b1", 2, i+1))
	}
	for i := 0; i < 5; i++ {
		sessions = append(sessions, ratedSession("old", "b1", 5, 60+i))
	}
	agg, _ = AggregateRatings(sessions, "b1", AllTime, testNow)
	if agg.Trend != TrendDown {
		t.Errorf("expected down, got %s", agg.Trend)
	}
}

func TestClassifyTier(t *testing.T) {
	tests := []struct {
		avg, sat float64
		want     rehab.Tier
	}{
		{4.7, 100, rehab.TierGold},
		{4.5, 90, rehab.TierGold},
		{4.5, 89, rehab.TierSilver},
		{4.0, 80, rehab.TierSilver},
		{4.9, 79, rehab.TierBronze},
		{3.9, 100, rehab.TierBronze},
		{0, 0, rehab.TierBronze},
	}
	for _, tt := range tests {
		if got := ClassifyTier(tt.avg, tt.sat); got != tt.want {
			t.Errorf("ClassifyTier(%v, %v) = %s, want %s", tt.avg, tt.sat, got, tt.want)
		}
	}
}

func TestClassifyTier_Monotonic(t *testing.T) {
	for avg := 0.0; avg <= 5.0; avg += 0.1 {
		for sat := 0.0; sat <= 100; sat += 5 {
			base := ClassifyTier(avg, sat).Rank()
			if ClassifyTier(avg+0.1, sat).Rank() < base {
				t.Fatalf("tier dropped when average rose from %v at sat %v", avg, sat)
			}
			if ClassifyTier(avg, sat+5).Rank() < base {
				t.Fatalf("tier dropped when satisfaction rose from %v at avg %v", sat, avg)
			}
		}
	}
}

func leaderboardSnapshot() rehab.Snapshot {
	return rehab.Snapshot{
		Users: []rehab.User{
			{ID: "b1", Name: "Ana", Role: rehab.RoleBuddy, Tier: rehab.TierBronze},
			{ID: "b2", Name: "Ben", Role: rehab.RoleBuddy, Tier: rehab.TierSilver},
			{ID: "b3", Name: "Cal", Role: rehab.RoleBuddy, Tier: rehab.TierGold},
			{ID: "b4", Name: "Dee", Role: rehab.RoleBuddy},
			{ID: "d1", Name: "Doc", Role: rehab.RoleDoctor},
		},
		Sessions: []rehab.Session{
			ratedSession("s1", "b1", 4, 1),
			ratedSession("s2", "b2", 5, 1),
			ratedSession("s3", "b3", 4, 1),
			{ID: "s4", BuddyID: "b4", Date: daysAgo(1), Status: rehab.SessionScheduled},
		},
	}
}

func TestLeaderboard_SortedAndStable(t *testing.T) {
	board := Leaderboard(leaderboardSnapshot(), AllTime, testNow)
	if len(board) != 3 {
		t.Fatalf("expected unrated buddy to be omitted, got %d rows", len(board))
	}
	got := []string{board[0].BuddyID, board[1].BuddyID, board[2].BuddyID}
	want := []string{"b2", "b1", "b3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if board[0].SuggestedTier != rehab.TierGold {
		t.Errorf("expected Gold suggestion for straight fives, got %s", board[0].SuggestedTier)
	}
	if board[0].Name != "Ben" {
		t.Errorf("expected name Ben, got %s", board[0].Name)
	}
}

func TestLeaderboard_Empty(t *testing.T) {
	board := Leaderboard(rehab.Snapshot{}, Last7Days, testNow)
	if board == nil || len(board) != 0 {
		t.Errorf("expected empty non-nil leaderboard, got %v", board)
	}
}

func TestOverview(t *testing.T) {
	snap := rehab.Snapshot{
		Users: []rehab.User{
			{ID: "d1", Role: rehab.RoleDoctor},
			{ID: "n1", Role: rehab.RoleNurse},
			{ID: "b1", Role: rehab.RoleBuddy},
			{ID: "b2", Role: rehab.RoleBuddy, Status: rehab.StatusInactive},
			{ID: "p1", Role: rehab.RolePatient},
		},
		Patients: []rehab.Patient{
			{User: rehab.User{ID: "p1", Role: rehab.RolePatient}, OverallProgress: &rehab.Progress{OverallPercentage: 40},
				ApprovalRequests: []rehab.ApprovalRequest{{ID: "r1", Status: rehab.RequestPendingApproval}}},
			{User: rehab.User{ID: "p2", Role: rehab.RolePatient}, AssignedBuddy: "b1", OverallProgress: &rehab.Progress{OverallPercentage: 61}},
			{User: rehab.User{ID: "p3", Role: rehab.RolePatient, Status: rehab.StatusInactive}},
		},
		Sessions: []rehab.Session{
			{ID: "s1", Status: rehab.SessionScheduled},
			{ID: "s2", Status: rehab.SessionScheduled},
			{ID: "s3", Status: rehab.SessionCompleted},
		},
	}
	o := Overview(snap)
	if o.TotalUsers != 5 || o.TotalPatients != 3 || o.ActivePatients != 2 {
		t.Errorf("unexpected totals: %+v", o)
	}
	if o.Doctors != 1 || o.Nurses != 1 || o.ActiveBuddies != 1 {
		t.Errorf("unexpected staff counts: %+v", o)
	}
	if o.UnassignedPatients != 1 {
		t.Errorf("expected 1 unassigned, got %d", o.UnassignedPatients)
	}
	if o.PendingApprovals != 1 {
		t.Errorf("expected 1 pending approval, got %d", o.PendingApprovals)
	}
	if o.AverageProgress != 50.5 {
		t.Errorf("expected average progress 50.5, got %v", o.AverageProgress)
	}
	if o.SessionsByStatus[rehab.SessionScheduled] != 2 || o.SessionsByStatus[rehab.SessionCompleted] != 1 {
		t.Errorf("unexpected session counts: %v", o.SessionsByStatus)
	}
}

func TestSummarizePatient(t *testing.T) {
	p := rehab.Patient{User: rehab.User{ID: "p1", Name: "Pat"}, AssignedBuddy: "b1"}
	snap := rehab.Snapshot{Sessions: []rehab.Session{
		{ID: "s1", PatientID: "p1", Status: rehab.SessionCompleted, PatientRating: rating(4)},
		{ID: "s2", PatientID: "p1", Status: rehab.SessionCompleted, PatientRating: rating(5)},
		{ID: "s3", PatientID: "p1", Status: rehab.SessionScheduled},
		{ID: "s4", PatientID: "p2", Status: rehab.SessionCompleted, PatientRating: rating(1)},
	}}
	sum := SummarizePatient(snap, p)
	if sum.SessionsCompleted != 2 || sum.SessionsUpcoming != 1 {
		t.Errorf("unexpected session counts: %+v", sum)
	}
	if sum.AverageRating != 4.5 {
		t.Errorf("expected average 4.5, got %v", sum.AverageRating)
	}
}

type staticSource struct{ snap rehab.Snapshot }

func (s staticSource) Snapshot() rehab.Snapshot { return s.snap }

func newTestHandler() *Handler {
	h := NewHandler(staticSource{snap: leaderboardSnapshot()})
	h.now = func() time.Time { return testNow }
	return h
}

func withRoles(req *http.Request, uid string, roles ...string) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, uid)
	ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
	return req.WithContext(ctx)
}

func TestHandler_ListPerformance(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/stats/buddies/performance?range=30days", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListPerformance(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rows []Performance
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 || rows[0].BuddyID != "b2" {
		t.Errorf("unexpected leaderboard: %+v", rows)
	}
}

func TestHandler_ListPerformance_BadRange(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/stats/buddies/performance?range=forever", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.ListPerformance(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetWorkload_BuddyScope(t *testing.T) {
	h := newTestHandler()
	e := echo.New()

	req := withRoles(httptest.NewRequest(http.MethodGet, "/", nil), "b1", "buddy")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("b1")
	if err := h.GetWorkload(c); err != nil {
		t.Fatalf("expected buddy to see own workload, got %v", err)
	}

	req = withRoles(httptest.NewRequest(http.MethodGet, "/", nil), "b1", "buddy")
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("b2")
	err := h.GetWorkload(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another buddy, got %v", err)
	}
}

func TestHandler_GetPerformance_NotFound(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := withRoles(httptest.NewRequest(http.MethodGet, "/", nil), "admin-1", "admin")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("d1")

	err := h.GetPerformance(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a non-buddy, got %v", err)
	}
}
