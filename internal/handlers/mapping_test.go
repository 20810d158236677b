package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/middleware"
	"github.com/statementdesk/ledgerlink/internal/models"
)

type stubMappingService struct {
	suggestions []dto.MappingSuggestion
	validation  dto.MappingValidation
	err         error

	suggestType models.MappingType
	suggestKeys []string
	called      bool
}

func (s *stubMappingService) GenerateSuggestions(ctx context.Context, uid string, provider models.Provider, tenantID string, mtype models.MappingType, localKeys []string) ([]dto.MappingSuggestion, error) {
	s.called = true
	s.suggestType = mtype
	s.suggestKeys = localKeys
	return s.suggestions, s.err
}

func (s *stubMappingService) AcceptMappings(ctx context.Context, uid string, provider models.Provider, tenantID string, mtype models.MappingType, accepted []dto.MappingSuggestion, source models.MappingSource) error {
	return s.err
}

func (s *stubMappingService) ValidateMappings(ctx context.Context, uid string, provider models.Provider, tenantID, fileID string) (dto.MappingValidation, error) {
	return s.validation, s.err
}

func autoSuggestRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/mappings/auto-suggest", strings.NewReader(body))
	return req.WithContext(context.WithValue(req.Context(), middleware.UIDKey, "uid-1"))
}

func TestAutoSuggestDefaultsToCategories(t *testing.T) {
	svc := &stubMappingService{suggestions: []dto.MappingSuggestion{{LocalKey: "travel", RemoteID: "acc-2"}}}
	resp := &stubResponseHandler{}
	h := NewMappingHandlers(&Deps{ResponseHandler: resp, MappingSvc: svc})

	rr := httptest.NewRecorder()
	h.AutoSuggest(rr, autoSuggestRequest(`{"provider":"xero","tenantId":"org-1","localKeys":["Travel"]}`))

	if svc.suggestType != models.MappingCategory {
		t.Fatalf("missing type should default to categories, got %q", svc.suggestType)
	}
	if !resp.writeSuccessCalled || resp.writeSuccessStatus != http.StatusOK {
		t.Fatalf("expected 200, got status %d", resp.writeSuccessStatus)
	}
}

func TestAutoSuggestMerchantType(t *testing.T) {
	svc := &stubMappingService{}
	resp := &stubResponseHandler{}
	h := NewMappingHandlers(&Deps{ResponseHandler: resp, MappingSvc: svc})

	rr := httptest.NewRecorder()
	h.AutoSuggest(rr, autoSuggestRequest(`{"provider":"xero","tenantId":"org-1","type":"merchants","localKeys":["Staples"]}`))

	if svc.suggestType != models.MappingMerchant {
		t.Fatalf("expected merchant type, got %q", svc.suggestType)
	}
	if len(svc.suggestKeys) != 1 || svc.suggestKeys[0] != "Staples" {
		t.Fatalf("keys not forwarded: %v", svc.suggestKeys)
	}
}

func TestAutoSuggestUnknownType(t *testing.T) {
	svc := &stubMappingService{}
	resp := &stubResponseHandler{}
	h := NewMappingHandlers(&Deps{ResponseHandler: resp, MappingSvc: svc})

	rr := httptest.NewRecorder()
	h.AutoSuggest(rr, autoSuggestRequest(`{"provider":"xero","tenantId":"org-1","type":"vendors","localKeys":["Staples"]}`))

	if svc.called {
		t.Fatal("service should not be called for an unknown type")
	}
	if _, ok := resp.handleError.(*errs.ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %v", resp.handleError)
	}
}
