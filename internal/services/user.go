package services

import (
	"context"

	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
	"github.com/statementdesk/ledgerlink/pkg/logger"
)

type userUSStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, uid string) (*models.User, error)
}

type userService struct {
	users userUSStore
}

func NewUserService(users userUSStore) *userService {
	return &userService{users: users}
}

// Register creates the user profile. New users start on the free tier.
func (s *userService) Register(ctx context.Context, uid, email, first, last string) error {
	if uid == "" || email == "" {
		return errs.NewValidationError("uid and email are required")
	}

	err := s.users.Create(ctx, &models.User{
		UID:       uid,
		Email:     email,
		FirstName: first,
		LastName:  last,
		Tier:      models.TierFree,
	})
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info("user registered", "uid", uid)
	return nil
}

func (s *userService) Get(ctx context.Context, uid string) (*models.User, error) {
	return s.users.Get(ctx, uid)
}
