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

type userStore struct {
	client *firestore.Client
}

func NewUserStore(client *firestore.Client) *userStore {
	return &userStore{client: client}
}

func (s *userStore) doc(uid string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(uid)
}

func (s *userStore) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err := s.doc(user.UID).Create(ctx, user)
	if status.Code(err) == codes.AlreadyExists {
		return errs.NewAlreadyExistsError("user already registered")
	}
	if err != nil {
		return errs.NewDatabaseError("user.create", err.Error())
	}
	return nil
}

func (s *userStore) Get(ctx context.Context, uid string) (*models.User, error) {
	doc, err := s.doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, errs.NewNotFoundError("user not found")
	}
	if err != nil {
		return nil, errs.NewDatabaseError("user.get", err.Error())
	}
	var u models.User
	if err := doc.DataTo(&u); err != nil {
		return nil, errs.NewDatabaseError("user.get", err.Error())
	}
	return &u, nil
}
