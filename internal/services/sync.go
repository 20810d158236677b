package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
	"github.com/statementdesk/ledgerlink/internal/providers"
	"github.com/statementdesk/ledgerlink/pkg/logger"
)

const (
	// rateLimitRetries is how often one transaction is retried after
	// provider throttling before it counts as failed.
	rateLimitRetries = 3
	syncQueueSize    = 64
)

// --- Dependencies (minimal interfaces scoped to this service) ---

type syncJobSSStore interface {
	Create(ctx context.Context, uid string, job *models.SyncJob) error
	Get(ctx context.Context, uid, jobID string) (*models.SyncJob, error)
	SaveProgress(ctx context.Context, uid string, job *models.SyncJob) error
	Transition(ctx context.Context, uid, jobID string, next models.SyncJobStatus) error
	RequestCancel(ctx context.Context, uid, jobID string) error
}

type transactionSSStore interface {
	ListByFile(ctx context.Context, uid, fileID string) ([]*models.Transaction, error)
}

type connectionSSStore interface {
	Get(ctx context.Context, uid, connID string) (*models.Connection, error)
}

type userSSStore interface {
	Get(ctx context.Context, uid string) (*models.User, error)
}

type mappingSSStore interface {
	ListActive(ctx context.Context, uid, connID string, mtype models.MappingType) ([]*models.Mapping, error)
}

type tokenSSProvider interface {
	GetValidAccessToken(ctx context.Context, uid string, provider models.Provider, tenantID string) (string, error)
}

type adapterSSResolver interface {
	Get(provider models.Provider) (providers.AuthAdapter, error)
}

type queuedJob struct {
	uid   string
	jobID string
}

// syncService turns a statement file plus a target connection into a
// tracked background job. The HTTP layer only enqueues and polls; workers
// drain the queue and record per-transaction outcomes on the job.
type syncService struct {
	jobs     syncJobSSStore
	txs      transactionSSStore
	conns    connectionSSStore
	users    userSSStore
	mappings mappingSSStore
	tokens   tokenSSProvider
	adapters adapterSSResolver

	queue   chan queuedJob
	workers int

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc

	clockNow    func() time.Time
	sleep       func(d time.Duration)
	baseBackoff time.Duration
}

func NewSyncService(
	jobs syncJobSSStore,
	txs transactionSSStore,
	conns connectionSSStore,
	users userSSStore,
	mappings mappingSSStore,
	tokens tokenSSProvider,
	adapters adapterSSResolver,
	workers int,
) *syncService {
	if workers <= 0 {
		workers = 1
	}
	return &syncService{
		jobs:        jobs,
		txs:         txs,
		conns:       conns,
		users:       users,
		mappings:    mappings,
		tokens:      tokens,
		adapters:    adapters,
		queue:       make(chan queuedJob, syncQueueSize),
		workers:     workers,
		cancels:     make(map[string]context.CancelFunc),
		clockNow:    time.Now,
		sleep:       time.Sleep,
		baseBackoff: time.Second,
	}
}

// Start launches the worker pool. The passed context bounds the workers'
// lifetime and should carry the application logger.
func (s *syncService) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		go s.run(ctx)
	}
}

func (s *syncService) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.queue:
			s.process(ctx, item.uid, item.jobID)
		}
	}
}

// SubmitBulkImport validates the request, creates the job in pending state
// and enqueues it. The response returns immediately; callers poll GetJob.
func (s *syncService) SubmitBulkImport(ctx context.Context, uid string, req dto.BulkImportRequest) (*models.SyncJob, error) {
	provider, err := models.ParseProvider(req.Settings.Provider)
	if err != nil {
		return nil, err
	}
	if req.FileID == "" {
		return nil, errs.NewValidationError("fileId is required")
	}
	if req.Settings.TenantID == "" {
		return nil, errs.NewValidationError("settings.tenantId is required")
	}

	user, err := s.users.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !user.CanBulkSync() {
		return nil, errs.NewSubscriptionError("bulk import requires a Pro subscription")
	}

	connID := models.ConnectionID(provider, req.Settings.TenantID)
	conn, err := s.conns.Get(ctx, uid, connID)
	if err != nil {
		return nil, err
	}
	if !conn.Active {
		return nil, errs.NewNotFoundError(fmt.Sprintf("no active %s connection for tenant %s", provider, req.Settings.TenantID))
	}

	txs, err := s.txs.ListByFile(ctx, uid, req.FileID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, errs.NewValidationError("file has no extracted transactions")
	}

	policy := req.Settings.UnmappedPolicy
	if policy == "" {
		policy = models.UnmappedFailItems
	}

	job := &models.SyncJob{
		ID:                uuid.NewString(),
		UserID:            uid,
		ConnectionID:      connID,
		FileID:            req.FileID,
		Status:            models.SyncPending,
		UnmappedPolicy:    policy,
		TotalTransactions: len(txs),
		CreatedAt:         s.clockNow(),
	}
	if err := s.jobs.Create(ctx, uid, job); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)

	select {
	case s.queue <- queuedJob{uid: uid, jobID: job.ID}:
	default:
		// The job document already exists; a pending job that can never
		// run must not linger, so it fails right here.
		job.Errors = append(job.Errors, models.SyncError{
			Code:   "rate_limited",
			Reason: "sync queue is full, job was not started",
		})
		if err := s.jobs.SaveProgress(ctx, uid, job); err != nil {
			log.Error("failed to record queue rejection", "job_id", job.ID, "error", err)
		}
		if err := s.jobs.Transition(ctx, uid, job.ID, models.SyncFailed); err != nil {
			log.Error("failed to fail rejected job", "job_id", job.ID, "error", err)
		}
		return nil, errs.NewRateLimitedError("sync queue is full, retry shortly")
	}

	log.Info("sync job submitted",
		"job_id", job.ID,
		"file_id", req.FileID,
		"provider", provider,
		"total_transactions", job.TotalTransactions)
	return job, nil
}

func (s *syncService) GetJob(ctx context.Context, uid, jobID string) (*models.SyncJob, error) {
	return s.jobs.Get(ctx, uid, jobID)
}

// Cancel requests cooperative cancellation. In-flight provider calls are
// allowed to finish; no new ones start after the worker observes the flag.
func (s *syncService) Cancel(ctx context.Context, uid, jobID string) error {
	job, err := s.jobs.Get(ctx, uid, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return errs.NewValidationError(fmt.Sprintf("job is already %s", job.Status))
	}
	if err := s.jobs.RequestCancel(ctx, uid, jobID); err != nil {
		return err
	}

	s.cancelMu.Lock()
	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
	}
	s.cancelMu.Unlock()

	log := logger.FromContext(ctx)
	log.Info("sync job cancellation requested", "job_id", jobID)
	return nil
}

// ---- worker side ----

func (s *syncService) process(ctx context.Context, uid, jobID string) {
	log := logger.FromContext(ctx).With("job_id", jobID)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelMu.Lock()
	s.cancels[jobID] = cancel
	s.cancelMu.Unlock()
	defer func() {
		s.cancelMu.Lock()
		delete(s.cancels, jobID)
		s.cancelMu.Unlock()
	}()

	job, err := s.jobs.Get(ctx, uid, jobID)
	if err != nil {
		log.Error("sync job vanished before processing", "error", err)
		return
	}
	if job.CancelRequested {
		if err := s.jobs.Transition(ctx, uid, jobID, models.SyncCancelled); err != nil {
			log.Error("failed to cancel pending job", "error", err)
		}
		return
	}

	if err := s.jobs.Transition(ctx, uid, jobID, models.SyncRunning); err != nil {
		log.Error("failed to start job", "error", err)
		return
	}
	job.Status = models.SyncRunning

	conn, err := s.conns.Get(ctx, uid, job.ConnectionID)
	if err != nil {
		s.failWhole(ctx, uid, job, "not_found", err.Error(), log)
		return
	}
	adapter, err := s.adapters.Get(conn.Provider)
	if err != nil {
		s.failWhole(ctx, uid, job, "invalid_input", err.Error(), log)
		return
	}

	txs, err := s.txs.ListByFile(ctx, uid, job.FileID)
	if err != nil {
		s.failWhole(ctx, uid, job, "internal_error", err.Error(), log)
		return
	}

	// One token fetch up front; the token service refreshes if needed.
	accessToken, err := s.tokens.GetValidAccessToken(ctx, uid, conn.Provider, conn.TenantID)
	if err != nil {
		s.failWhole(ctx, uid, job, errs.Code(err), err.Error(), log)
		return
	}

	catMaps, merchMaps, err := s.activeMappings(ctx, uid, job.ConnectionID, adapter)
	if err != nil {
		s.failWhole(ctx, uid, job, errs.Code(err), err.Error(), log)
		return
	}

	log.Info("sync job running", "provider", conn.Provider, "total_transactions", len(txs))

	cancelled := false
	for _, tx := range txs {
		// Cooperative cancellation: checked between transactions, never
		// mid-call. Issued provider calls are not rolled back. The
		// persisted flag is re-read because the DELETE may have landed on
		// another instance, where the in-process jobCtx never fires.
		if jobCtx.Err() != nil {
			cancelled = true
			break
		}
		if fresh, err := s.jobs.Get(ctx, uid, jobID); err == nil && fresh.CancelRequested {
			cancelled = true
			break
		}

		outcome := s.exportOne(jobCtx, adapter, accessToken, conn.TenantID, tx, catMaps, merchMaps, job.UnmappedPolicy)
		if outcome == nil {
			job.SuccessfulImports++
		} else {
			job.FailedImports++
			job.Errors = append(job.Errors, models.SyncError{
				TransactionRef: tx.TransactionID,
				Code:           errs.Code(outcome),
				Reason:         outcome.Error(),
			})
		}

		if err := s.jobs.SaveProgress(ctx, uid, job); err != nil {
			log.Error("failed to persist job progress", "error", err)
		}

		// A dead grant fails every remaining call identically; stop
		// hammering the provider and fail the rest in place.
		switch outcome.(type) {
		case *errs.AuthExpiredError, *errs.AuthRevokedError, *errs.NoRefreshTokenError:
			s.failRemaining(ctx, uid, job, txs, errs.Code(outcome), log)
			s.finish(ctx, uid, job, false, log)
			return
		}
	}

	s.finish(ctx, uid, job, cancelled, log)
}

// activeMappings loads the category and merchant mapping tables for
// providers that have a chart of accounts. Keys are normalized.
func (s *syncService) activeMappings(ctx context.Context, uid, connID string, adapter providers.AuthAdapter) (map[string]*models.Mapping, map[string]*models.Mapping, error) {
	if !adapter.SupportsAccounts() {
		return nil, nil, nil
	}
	byKey := make([]map[string]*models.Mapping, 2)
	for i, mtype := range []models.MappingType{models.MappingCategory, models.MappingMerchant} {
		list, err := s.mappings.ListActive(ctx, uid, connID, mtype)
		if err != nil {
			return nil, nil, err
		}
		byKey[i] = make(map[string]*models.Mapping, len(list))
		for _, m := range list {
			byKey[i][models.NormalizeKey(m.LocalKey)] = m
		}
	}
	return byKey[0], byKey[1], nil
}

// exportOne transforms and pushes a single transaction, retrying only on
// provider throttling. Returns nil on success, a taxonomy error otherwise.
func (s *syncService) exportOne(
	ctx context.Context,
	adapter providers.AuthAdapter,
	accessToken, tenantID string,
	tx *models.Transaction,
	catMaps, merchMaps map[string]*models.Mapping,
	policy models.UnmappedPolicy,
) error {
	if tx.Date == "" || tx.Description == "" {
		return errs.NewValidationError(fmt.Sprintf("transaction %s is missing date or description", tx.TransactionID))
	}

	wire := dto.RemoteTransaction{
		Ref:         tx.TransactionID,
		Date:        tx.Date,
		Description: tx.Description,
		Merchant:    tx.Merchant,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		AccountName: tx.Category,
	}

	if adapter.SupportsAccounts() {
		mapping := catMaps[models.NormalizeKey(tx.Category)]
		if mapping == nil && policy == models.UnmappedFallback {
			// Fallback bucket: the connection's designated "uncategorized"
			// mapping, when one exists.
			mapping = catMaps["uncategorized"]
		}
		if mapping == nil {
			return errs.NewMappingError(fmt.Sprintf("no active mapping for category %q", tx.Category))
		}
		wire.AccountID = mapping.RemoteID
		wire.AccountName = mapping.RemoteName

		// Merchants resolve to a remote contact/vendor. Under the fallback
		// policy an unmapped merchant goes out by name and the provider
		// creates the contact.
		if tx.Merchant != "" {
			merchant := merchMaps[models.NormalizeKey(tx.Merchant)]
			switch {
			case merchant != nil:
				wire.MerchantID = merchant.RemoteID
				wire.Merchant = merchant.RemoteName
			case policy != models.UnmappedFallback:
				return errs.NewMappingError(fmt.Sprintf("no active mapping for merchant %q", tx.Merchant))
			}
		}
	}

	var err error
	for attempt := 0; attempt <= rateLimitRetries; attempt++ {
		if attempt > 0 {
			s.sleep(s.baseBackoff << (attempt - 1))
		}
		err = adapter.CreateTransaction(ctx, accessToken, tenantID, wire)
		if _, throttled := err.(*errs.RateLimitedError); !throttled {
			break
		}
	}
	return err
}

// failWhole marks every transaction failed with one shared reason. Used
// when the job cannot start at all (dead token, missing connection).
func (s *syncService) failWhole(ctx context.Context, uid string, job *models.SyncJob, code, reason string, log *slog.Logger) {
	txs, err := s.txs.ListByFile(ctx, uid, job.FileID)
	if err == nil {
		for _, tx := range txs {
			job.FailedImports++
			job.Errors = append(job.Errors, models.SyncError{
				TransactionRef: tx.TransactionID,
				Code:           code,
				Reason:         reason,
			})
		}
	} else {
		job.FailedImports = job.TotalTransactions
		job.Errors = append(job.Errors, models.SyncError{Code: code, Reason: reason})
	}
	if err := s.jobs.SaveProgress(ctx, uid, job); err != nil {
		log.Error("failed to persist job failure", "error", err)
	}
	s.finish(ctx, uid, job, false, log)
}

// failRemaining marks transactions after the current position as failed
// with the given code, preserving input order.
func (s *syncService) failRemaining(ctx context.Context, uid string, job *models.SyncJob, txs []*models.Transaction, code string, log *slog.Logger) {
	processed := job.SuccessfulImports + job.FailedImports
	for i := processed; i < len(txs); i++ {
		job.FailedImports++
		job.Errors = append(job.Errors, models.SyncError{
			TransactionRef: txs[i].TransactionID,
			Code:           code,
			Reason:         "aborted: provider authorization is no longer valid",
		})
	}
	if err := s.jobs.SaveProgress(ctx, uid, job); err != nil {
		log.Error("failed to persist job failure", "error", err)
	}
}

func (s *syncService) finish(ctx context.Context, uid string, job *models.SyncJob, cancelled bool, log *slog.Logger) {
	next := models.SyncCompleted
	switch {
	case cancelled:
		next = models.SyncCancelled
	case job.FailedImports > 0:
		next = models.SyncFailed
	}
	if err := s.jobs.Transition(ctx, uid, job.ID, next); err != nil {
		log.Error("failed to finish job", "status", next, "error", err)
		return
	}
	log.Info("sync job finished",
		"status", next,
		"successful_imports", job.SuccessfulImports,
		"failed_imports", job.FailedImports)
}
