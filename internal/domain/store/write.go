package store

import (
	"context"
	"fmt"

	"github.com/rehab/rehab/internal/domain/rehab"
	"github.com/rehab/rehab/internal/platform/accounts"
	"github.com/rehab/rehab/internal/platform/docstore"
)

// Gateway writes are never retried; the first error is returned.

func (s *Store) createDocument(ctx context.Context, collection string, v interface{}) (string, error) {
	doc, err := rehab.Encode(v)
	if err != nil {
		return "", err
	}
	id, err := s.docs.Create(ctx, collection, doc)
	if err != nil {
		return "", fmt.Errorf("create %s document: %w", collection, err)
	}
	return id, nil
}

// createWithAccount creates a login account and then the profile document
// keyed by the account uid. If the document write fails the account is
// deleted again. CreatingUser reports true for the duration.
func (s *Store) createWithAccount(ctx context.Context, email, password string, profile accounts.Profile, build func(uid string) interface{}) (string, error) {
	s.creatingUser.Store(true)
	defer s.creatingUser.Store(false)

	acct, err := s.accounts.CreateUserAccount(ctx, email, password, profile)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	id, err := s.createDocument(ctx, UsersCollection, build(acct.UID))
	if err != nil {
		if derr := s.accounts.DeleteAccount(ctx, acct.UID); derr != nil {
			s.logger.Error().Err(derr).Str("uid", acct.UID).Str("email", acct.Email).
				Msg("orphaned account: profile write failed and account removal failed")
		} else {
			s.logger.Warn().Err(err).Str("uid", acct.UID).Msg("profile write failed, account removed")
		}
		return "", err
	}
	return id, nil
}

// patch encodes the set fields of v and merges them into document id.
func (s *Store) patch(ctx context.Context, collection, id string, v interface{}) error {
	doc, err := rehab.Encode(v)
	if err != nil {
		return err
	}
	if len(doc) == 0 {
		return rehab.Invalid("", "nothing to update")
	}
	return s.write(ctx, collection, id, doc)
}

// write stamps updatedAt and merges doc into document id.
func (s *Store) write(ctx context.Context, collection, id string, doc docstore.Document) error {
	doc["updatedAt"] = s.timestamp()
	if err := s.docs.Update(ctx, collection, id, doc); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// get reads the current version of one document from the gateway.
func (s *Store) get(ctx context.Context, collection, id string, out interface{}) error {
	docs, err := s.docs.Query(ctx, collection, docstore.Where("id", docstore.OpEqual, id))
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return rehab.Decode(docs[0], out)
}
