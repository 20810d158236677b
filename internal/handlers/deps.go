package handlers

import (
	"log/slog"

	"firebase.google.com/go/v4/auth"

	"github.com/statementdesk/ledgerlink/internal/response"
)

type Deps struct {
	Log             *slog.Logger
	ResponseHandler response.ResponseHandler
	Firebase        *auth.Client

	// AppRedirectURL is the frontend settings page users land on after
	// an OAuth callback.
	AppRedirectURL string

	OAuthSvc   OAuthService
	TokenSvc   TokenService
	SyncSvc    SyncService
	MappingSvc MappingService
	UserSvc    UserService
}
