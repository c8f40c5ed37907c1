package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/retry"
)

// LoadError is returned when a load exhausts its retries.
type LoadError struct {
	What     string
	Attempts int
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s after %d attempts: %v", e.What, e.Attempts, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// fetch queries a collection under the load retry policy. On exhaustion the
// snapshot error is set and a *LoadError returned.
func (s *Store) fetch(ctx context.Context, what, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	done := s.beginLoad()
	defer done()

	policy := s.load
	policy.OnRetry = func(attempt int, err error) {
		s.logger.Warn().Err(err).Str("load", what).Int("attempt", attempt).Msg("load failed, retrying")
	}

	var docs []docstore.Document
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		docs, err = s.docs.Query(ctx, collection, filters...)
		return err
	})
	if err != nil {
		le := &LoadError{What: what, Attempts: 1, Err: err}
		var re *retry.Error
		if errors.As(err, &re) {
			le.Attempts, le.Err = re.Attempts, re.Err
		}
		s.setError(le.Error())
		s.logger.Error().Err(le.Err).Str("load", what).Int("attempts", le.Attempts).Msg("load failed")
		return nil, le
	}
	return docs, nil
}

func decodeLogged[T any](s *Store, what string, docs []docstore.Document) []T {
	out, errs := rehab.DecodeAll[T](docs)
	for _, err := range errs {
		s.logger.Warn().Err(err).Str("load", what).Msg("skipping undecodable document")
	}
	return out
}

// LoadUsers replaces the users array with every document in the users
// collection, patients included.
func (s *Store) LoadUsers(ctx context.Context) error {
	docs, err := s.fetch(ctx, "users", UsersCollection)
	if err != nil {
		return err
	}
	users := decodeLogged[rehab.User](s, "users", docs)
	s.update(func(snap *rehab.Snapshot) {
		snap.Users = users
		snap.Error = ""
	})
	return nil
}

// LoadPatients replaces the patients array with the users whose role is patient.
func (s *Store) LoadPatients(ctx context.Context) error {
	docs, err := s.fetch(ctx, "patients", UsersCollection,
		docstore.Where("role", docstore.OpEqual, string(rehab.RolePatient)))
	if err != nil {
		return err
	}
	patients := decodeLogged[rehab.Patient](s, "patients", docs)
	s.update(func(snap *rehab.Snapshot) {
		snap.Patients = patients
		snap.Error = ""
	})
	return nil
}

func (s *Store) LoadSessions(ctx context.Context) error {
	docs, err := s.fetch(ctx, "sessions", SessionsCollection)
	if err != nil {
		return err
	}
	sessions := decodeLogged[rehab.Session](s, "sessions", docs)
	s.update(func(snap *rehab.Snapshot) {
		snap.Sessions = sessions
		snap.Error = ""
	})
	return nil
}

func (s *Store) LoadCarePlans(ctx context.Context) error {
	docs, err := s.fetch(ctx, "care plans", CarePlansCollection)
	if err != nil {
		return err
	}
	plans := decodeLogged[rehab.CarePlanRecord](s, "care plans", docs)
	s.update(func(snap *rehab.Snapshot) {
		snap.CarePlans = plans
		snap.Error = ""
	})
	return nil
}

// LoadAll runs every load in turn and returns the first failure. Later loads
// still run after an earlier one fails.
func (s *Store) LoadAll(ctx context.Context) error {
	var first error
	for _, load := range []func(context.Context) error{
		s.LoadUsers, s.LoadPatients, s.LoadSessions, s.LoadCarePlans,
	} {
		if err := load(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// reload refreshes collections after a successful write. A failed reload does
// not fail the write; the snapshot error records it.
func (s *Store) reload(ctx context.Context, loads ...func(context.Context) error) {
	for _, load := range loads {
		if err := load(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("reload after write failed")
		}
	}
}

func (s *Store) reloadPatients(ctx context.Context) {
	s.reload(ctx, s.LoadPatients, s.LoadUsers)
}
