package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

type syncJobStore struct {
	client *firestore.Client
}

func NewSyncJobStore(client *firestore.Client) *syncJobStore {
	return &syncJobStore{client: client}
}

func (s *syncJobStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("syncJobs")
}

func (s *syncJobStore) Create(ctx context.Context, uid string, job *models.SyncJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if _, err := s.collection(uid).Doc(job.ID).Create(ctx, job); err != nil {
		return errs.NewDatabaseError("syncJob.create", err.Error())
	}
	return nil
}

func (s *syncJobStore) Get(ctx context.Context, uid, jobID string) (*models.SyncJob, error) {
	doc, err := s.collection(uid).Doc(jobID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, errs.NewNotFoundError("sync job not found")
	}
	if err != nil {
		return nil, errs.NewDatabaseError("syncJob.get", err.Error())
	}
	var job models.SyncJob
	if err := doc.DataTo(&job); err != nil {
		return nil, errs.NewDatabaseError("syncJob.get", err.Error())
	}
	return &job, nil
}

// SaveProgress persists the worker's counters and error list after each
// transaction outcome. Only those fields are written: status and the
// cancelRequested flag have other writers (Transition, RequestCancel,
// possibly on another instance) and must not be clobbered by a full Set.
func (s *syncJobStore) SaveProgress(ctx context.Context, uid string, job *models.SyncJob) error {
	_, err := s.collection(uid).Doc(job.ID).Update(ctx, []firestore.Update{
		{Path: "successfulImports", Value: job.SuccessfulImports},
		{Path: "failedImports", Value: job.FailedImports},
		{Path: "errors", Value: job.Errors},
	})
	if err != nil {
		return errs.NewDatabaseError("syncJob.saveProgress", err.Error())
	}
	return nil
}

// Transition moves the job's status, enforcing the state machine inside a
// transaction so a terminal status is set exactly once.
func (s *syncJobStore) Transition(ctx context.Context, uid, jobID string, next models.SyncJobStatus) error {
	ref := s.collection(uid).Doc(jobID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var job models.SyncJob
		if err := doc.DataTo(&job); err != nil {
			return err
		}
		if !job.Status.CanTransitionTo(next) {
			return errs.NewValidationError(fmt.Sprintf("illegal job transition %s -> %s", job.Status, next))
		}
		updates := []firestore.Update{{Path: "status", Value: string(next)}}
		if next.Terminal() {
			updates = append(updates, firestore.Update{Path: "completedAt", Value: time.Now()})
		}
		return tx.Update(ref, updates)
	})
	if status.Code(err) == codes.NotFound {
		return errs.NewNotFoundError("sync job not found")
	}
	return err
}

// RequestCancel sets the cooperative-cancellation flag the worker checks
// between transactions.
func (s *syncJobStore) RequestCancel(ctx context.Context, uid, jobID string) error {
	_, err := s.collection(uid).Doc(jobID).Update(ctx, []firestore.Update{
		{Path: "cancelRequested", Value: true},
	})
	if status.Code(err) == codes.NotFound {
		return errs.NewNotFoundError("sync job not found")
	}
	if err != nil {
		return errs.NewDatabaseError("syncJob.requestCancel", err.Error())
	}
	return nil
}
