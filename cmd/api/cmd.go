package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/statementdesk/ledgerlink/internal/bootstrap"
	"github.com/statementdesk/ledgerlink/internal/config"
	"github.com/statementdesk/ledgerlink/internal/crypto"
	"github.com/statementdesk/ledgerlink/internal/handlers"
	"github.com/statementdesk/ledgerlink/internal/models"
	"github.com/statementdesk/ledgerlink/internal/providers"
	"github.com/statementdesk/ledgerlink/internal/response"
	"github.com/statementdesk/ledgerlink/internal/router"
	"github.com/statementdesk/ledgerlink/internal/services"
	"github.com/statementdesk/ledgerlink/internal/store"
	"github.com/statementdesk/ledgerlink/pkg/logger"
)

func exitOnError(message string, err error, log *slog.Logger) {
	if err != nil {
		log.Error(message, "error", err)
		os.Exit(1)
	}
}

func main() {
	// bootstrap
	cfg := config.New()
	bs, err := bootstrap.Run(cfg)
	exitOnError("bootstrap failed", err, bs.Log)
	defer bs.Close()

	// helpers
	kmsHelper := crypto.NewKMS(bs.KMS, cfg.KMSKeyName)

	// provider adapters
	registry := providers.NewRegistry(
		providers.NewGoogle(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.RedirectURI(string(models.ProviderGoogle))),
		providers.NewXero(cfg.Xero.ClientID, cfg.Xero.ClientSecret, cfg.RedirectURI(string(models.ProviderXero))),
		providers.NewQuickBooks(cfg.QuickBooks.ClientID, cfg.QuickBooks.ClientSecret, cfg.RedirectURI(string(models.ProviderQuickBooks)), cfg.QuickBooksAPIBase),
	)

	// stores
	ustore := store.NewUserStore(bs.Firestore)
	cstore := store.NewConnectionStore(bs.Firestore, kmsHelper)
	sstore := store.NewOAuthStateStore(bs.Firestore)
	jstore := store.NewSyncJobStore(bs.Firestore)
	tstore := store.NewTransactionStore(bs.Firestore)
	mstore := store.NewMappingStore(bs.Firestore)

	// services
	userv := services.NewUserService(ustore)
	tokserv := services.NewTokenService(cstore, registry)
	oaserv := services.NewOAuthService(sstore, cstore, registry)
	maserv := services.NewMappingService(mstore, tstore, tokserv, registry, bs.VertexAdapter)
	syserv := services.NewSyncService(jstore, tstore, cstore, ustore, mstore, tokserv, registry, cfg.SyncWorkers)

	// background workers
	workerCtx := logger.ToContext(context.Background(), bs.Log)
	syserv.Start(workerCtx)
	oaserv.StartStateSweeper(workerCtx, models.StateTTL)

	// response handler
	rh := response.New(bs.Log)

	// dependancies
	deps := new(handlers.Deps)
	deps.Log = bs.Log
	deps.ResponseHandler = rh
	deps.Firebase = bs.Firebase
	deps.AppRedirectURL = cfg.AppRedirectURL
	deps.OAuthSvc = oaserv
	deps.TokenSvc = tokserv
	deps.SyncSvc = syserv
	deps.MappingSvc = maserv
	deps.UserSvc = userv

	// router
	r := router.NewRouter(deps)
	err = http.ListenAndServe(":8080", r)
	exitOnError("server start failed", err, bs.Log)
}
