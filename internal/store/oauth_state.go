package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

type oauthStateStore struct {
	client *firestore.Client
}

func NewOAuthStateStore(client *firestore.Client) *oauthStateStore {
	return &oauthStateStore{client: client}
}

func (s *oauthStateStore) collection() *firestore.CollectionRef {
	return s.client.Collection("oauthStates")
}

func (s *oauthStateStore) Create(ctx context.Context, state *models.OAuthState) error {
	if _, err := s.collection().Doc(state.State).Create(ctx, state); err != nil {
		return errs.NewDatabaseError("oauthState.create", err.Error())
	}
	return nil
}

// Consume reads and deletes the state row in one transaction, so a replayed
// callback can never pass validation twice. A miss is an InvalidStateError.
func (s *oauthStateStore) Consume(ctx context.Context, state string) (*models.OAuthState, error) {
	var out models.OAuthState
	ref := s.collection().Doc(state)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if err := doc.DataTo(&out); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	if status.Code(err) == codes.NotFound {
		return nil, errs.NewInvalidStateError("unknown or already used state")
	}
	if err != nil {
		return nil, errs.NewDatabaseError("oauthState.consume", err.Error())
	}
	return &out, nil
}

// PurgeExpired garbage-collects states that were never consumed.
func (s *oauthStateStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	docs, err := s.collection().Where("expiresAt", "<", now).Documents(ctx).GetAll()
	if err != nil {
		return 0, errs.NewDatabaseError("oauthState.purge", err.Error())
	}
	bw := s.client.BulkWriter(ctx)
	for _, d := range docs {
		if _, err := bw.Delete(d.Ref); err != nil {
			return 0, errs.NewDatabaseError("oauthState.purge", err.Error())
		}
	}
	bw.End()
	return len(docs), nil
}
