package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/domain/store"
)

// ---------------------------------------------------------------------------
// Name pools
// ---------------------------------------------------------------------------

var firstNames = []string{
	"James", "Robert", "John", "Michael", "David", "William", "Richard", "Joseph",
	"Thomas", "Daniel", "Mary", "Patricia", "Jennifer", "Linda", "Elizabeth",
	"Barbara", "Susan", "Jessica", "Sarah", "Karen", "Amara", "Kenji", "Priya",
	"Mateo", "Leila", "Tomasz", "Ingrid", "Kwame", "Sofia", "Ravi",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Wilson", "Anderson",
	"Thomas", "Taylor", "Moore", "Jackson", "Martin", "Lee", "Okafor", "Tanaka",
	"Sharma", "Novak", "Lindqvist", "Mensah", "Rossi", "Haddad", "Kowalski", "Patel",
}

var conditions = []string{
	"Alcohol use disorder",
	"Opioid use disorder",
	"Stimulant use disorder",
	"Post-surgical knee rehabilitation",
	"Stroke recovery",
	"Chronic lower back pain",
	"Traumatic brain injury",
	"Generalized anxiety with substance use",
}

var specializations = []string{
	"Addiction medicine", "Physiatry", "Psychiatry", "Neurology", "Sports medicine",
}

var sessionTypes = []string{"physio", "counselling", "group", "walk", "check-in"}

var activities = []string{
	"stretching", "breathing exercises", "journaling", "strength training",
	"relapse prevention", "mindfulness", "balance drills", "goal review",
}

var ratingComments = []string{
	"", "Very supportive", "Helpful session", "Felt rushed", "Great listener",
	"Could be more punctual", "Motivating as always",
}

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic rehab data.
type DataGenerator struct {
	rng     *rand.Rand
	counter int
	domain  string
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64, domain string) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if domain == "" {
		domain = DefaultEmailDomain
	}
	return &DataGenerator{
		rng:    rand.New(rand.NewSource(seed)),
		domain: domain,
	}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("(%03d) %03d-%04d",
		200+g.rng.Intn(800),
		200+g.rng.Intn(800),
		g.rng.Intn(10000),
	)
}

// person returns a name and an email unique within this generator.
func (g *DataGenerator) person() (name, email string) {
	first, last := g.pick(firstNames), g.pick(lastNames)
	g.counter++
	email = fmt.Sprintf("%s.%s%d@%s", strings.ToLower(first), strings.ToLower(last), g.counter, g.domain)
	return first + " " + last, email
}

func (g *DataGenerator) birthDate(now time.Time) string {
	age := 18 + g.rng.Intn(60)
	return now.AddDate(-age, -g.rng.Intn(12), -g.rng.Intn(28)).Format("2006-01-02")
}

// rating skews toward the top of the scale, roughly as real feedback does.
func (g *DataGenerator) rating() int {
	switch n := g.rng.Intn(10); {
	case n < 4:
		return 5
	case n < 7:
		return 4
	case n < 9:
		return 3
	default:
		return 1 + g.rng.Intn(2)
	}
}

func (g *DataGenerator) sessionActivities() []string {
	n := 1 + g.rng.Intn(3)
	out := make([]string, 0, n)
	for _, i := range g.rng.Perm(len(activities))[:n] {
		out = append(out, activities[i])
	}
	return out
}

func (g *DataGenerator) progressDimension() float64 {
	return float64(10 + g.rng.Intn(81))
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// DefaultEmailDomain is used for generated addresses.
const DefaultEmailDomain = "demo.rehab"

// SeedConfig controls what a seeding run generates.
type SeedConfig struct {
	Seed               int64  `json:"seed,omitempty"`
	Doctors            int    `json:"doctors"`
	Nurses             int    `json:"nurses"`
	Buddies            int    `json:"buddies"`
	Patients           int    `json:"patients"`
	SessionsPerPatient int    `json:"sessionsPerPatient"`
	Unassigned         int    `json:"unassigned"`
	Password           string `json:"password,omitempty"`
	EmailDomain        string `json:"emailDomain,omitempty"`
}

// DefaultSeedConfig is a small clinic with a few patients left for
// auto-assignment.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Seed:               42,
		Doctors:            2,
		Nurses:             2,
		Buddies:            5,
		Patients:           12,
		SessionsPerPatient: 3,
		Unassigned:         3,
		Password:           "rehab-demo",
	}
}

func (c SeedConfig) withDefaults() SeedConfig {
	if c.Password == "" {
		c.Password = "rehab-demo"
	}
	if c.Unassigned > c.Patients {
		c.Unassigned = c.Patients
	}
	return c
}

// SeedResult summarises what a seeding run wrote.
type SeedResult struct {
	Users      int      `json:"users"`
	Patients   int      `json:"patients"`
	Sessions   int      `json:"sessions"`
	Ratings    int      `json:"ratings"`
	Progress   int      `json:"progress"`
	Emails     []string `json:"emails"`
	DurationMs int64    `json:"durationMs"`
}

// Target is the write surface the seeder drives. *store.Store satisfies it.
type Target interface {
	AddUser(ctx context.Context, in store.NewUser) (string, error)
	AddPatient(ctx context.Context, in store.NewPatient) (string, error)
	AddSession(ctx context.Context, in store.NewSession) (string, error)
	RateSession(ctx context.Context, id string, in store.SessionRating) error
	UpdatePatientProgress(ctx context.Context, patientID string, in store.ProgressUpdate) error
}

// Seeder writes synthetic staff, patients and sessions through the same
// actions the API uses, so every generated document passes validation.
type Seeder struct {
	target Target
	config SeedConfig
	gen    *DataGenerator
	now    func() time.Time
}

// NewSeeder creates a Seeder for the given target and config.
func NewSeeder(target Target, config SeedConfig) *Seeder {
	config = config.withDefaults()
	return &Seeder{
		target: target,
		config: config,
		gen:    NewDataGenerator(config.Seed, config.EmailDomain),
		now:    time.Now,
	}
}

// WithClock fixes the reference time used for session dates.
func (s *Seeder) WithClock(now func() time.Time) *Seeder {
	s.now = now
	return s
}

// Run generates everything according to config. On error the result counts
// what was written before the failure.
func (s *Seeder) Run(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	result := &SeedResult{}
	defer func() { result.DurationMs = time.Since(start).Milliseconds() }()

	doctors, err := s.staff(ctx, result, rehab.RoleDoctor, s.config.Doctors)
	if err != nil {
		return result, err
	}
	nurses, err := s.staff(ctx, result, rehab.RoleNurse, s.config.Nurses)
	if err != nil {
		return result, err
	}
	buddies, err := s.staff(ctx, result, rehab.RoleBuddy, s.config.Buddies)
	if err != nil {
		return result, err
	}

	assigned := s.config.Patients - s.config.Unassigned
	for i := 0; i < s.config.Patients; i++ {
		in := s.patient(i, doctors, nurses)
		if i < assigned && len(buddies) > 0 {
			in.AssignedBuddy = buddies[i%len(buddies)]
		}
		id, err := s.target.AddPatient(ctx, in)
		if err != nil {
			return result, fmt.Errorf("seed patient %s: %w", in.Email, err)
		}
		result.Patients++
		result.Emails = append(result.Emails, in.Email)

		if in.AssignedBuddy == "" {
			continue
		}
		if err := s.sessions(ctx, result, id, in.AssignedBuddy, in.AssignedNurse); err != nil {
			return result, err
		}
		if i%2 == 0 {
			if err := s.progress(ctx, id, in.AssignedNurse); err != nil {
				return result, err
			}
			result.Progress++
		}
	}
	return result, nil
}

func (s *Seeder) staff(ctx context.Context, result *SeedResult, role rehab.Role, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name, email := s.gen.person()
		in := store.NewUser{
			Email:    email,
			Name:     name,
			Role:     string(role),
			Phone:    s.gen.randomPhone(),
			Password: s.config.Password,
		}
		if role == rehab.RoleDoctor {
			in.Specialization = s.gen.pick(specializations)
		}
		id, err := s.target.AddUser(ctx, in)
		if err != nil {
			return ids, fmt.Errorf("seed %s %s: %w", role, email, err)
		}
		ids = append(ids, id)
		result.Users++
		result.Emails = append(result.Emails, email)
	}
	return ids, nil
}

func (s *Seeder) patient(i int, doctors, nurses []string) store.NewPatient {
	name, email := s.gen.person()
	in := store.NewPatient{
		Email:       email,
		Name:        name,
		Password:    s.config.Password,
		Phone:       s.gen.randomPhone(),
		DateOfBirth: s.gen.birthDate(s.now()),
		Condition:   s.gen.pick(conditions),
	}
	if len(doctors) > 0 {
		in.AssignedDoctor = doctors[i%len(doctors)]
	}
	if len(nurses) > 0 {
		in.AssignedNurse = nurses[i%len(nurses)]
	}
	return in
}

// sessions writes completed sessions in the past few weeks, each rated, and
// one upcoming session.
func (s *Seeder) sessions(ctx context.Context, result *SeedResult, patientID, buddyID, nurseID string) error {
	now := s.now()
	for j := 0; j < s.config.SessionsPerPatient; j++ {
		in := store.NewSession{
			PatientID:  patientID,
			BuddyID:    buddyID,
			NurseID:    nurseID,
			Date:       now.AddDate(0, 0, -(1 + s.gen.rng.Intn(28))).Format("2006-01-02"),
			Time:       fmt.Sprintf("%02d:%02d", 8+s.gen.rng.Intn(10), 15*s.gen.rng.Intn(4)),
			Duration:   30 + 15*s.gen.rng.Intn(5),
			Type:       s.gen.pick(sessionTypes),
			Activities: s.gen.sessionActivities(),
			Status:     rehab.SessionCompleted,
		}
		id, err := s.target.AddSession(ctx, in)
		if err != nil {
			return fmt.Errorf("seed session for %s: %w", patientID, err)
		}
		result.Sessions++

		rating := store.SessionRating{Rating: s.gen.rating(), Feedback: s.gen.pick(ratingComments)}
		if err := s.target.RateSession(ctx, id, rating); err != nil {
			return fmt.Errorf("rate session %s: %w", id, err)
		}
		result.Ratings++
	}

	upcoming := store.NewSession{
		PatientID: patientID,
		BuddyID:   buddyID,
		NurseID:   nurseID,
		Date:      now.AddDate(0, 0, 1+s.gen.rng.Intn(7)).Format("2006-01-02"),
		Time:      "10:00",
		Duration:  60,
		Type:      s.gen.pick(sessionTypes),
	}
	if _, err := s.target.AddSession(ctx, upcoming); err != nil {
		return fmt.Errorf("seed session for %s: %w", patientID, err)
	}
	result.Sessions++
	return nil
}

func (s *Seeder) progress(ctx context.Context, patientID, nurseID string) error {
	in := store.ProgressUpdate{
		PhysicalProgress:  s.gen.progressDimension(),
		MentalProgress:    s.gen.progressDimension(),
		EmotionalProgress: s.gen.progressDimension(),
		SocialProgress:    s.gen.progressDimension(),
		UpdatedBy:         nurseID,
		RequestedBy:       string(rehab.RoleNurse),
		Notes:             "Initial assessment",
	}
	if in.UpdatedBy == "" {
		in.UpdatedBy = patientID
		in.RequestedBy = string(rehab.RolePatient)
	}
	if err := s.target.UpdatePatientProgress(ctx, patientID, in); err != nil {
		return fmt.Errorf("seed progress for %s: %w", patientID, err)
	}
	return nil
}
