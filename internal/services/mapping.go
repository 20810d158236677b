package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/statementdesk/ledgerlink/internal/dto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
	"github.com/statementdesk/ledgerlink/internal/providers"
	"github.com/statementdesk/ledgerlink/pkg/helpers"
	"github.com/statementdesk/ledgerlink/pkg/logger"
)

// --- Dependencies (minimal interfaces scoped to this service) ---

type mappingMSStore interface {
	Upsert(ctx context.Context, uid, connID string, mtype models.MappingType, m *models.Mapping) error
	ListActive(ctx context.Context, uid, connID string, mtype models.MappingType) ([]*models.Mapping, error)
}

type transactionMSStore interface {
	ListByFile(ctx context.Context, uid, fileID string) ([]*models.Transaction, error)
}

type tokenMSProvider interface {
	GetValidAccessToken(ctx context.Context, uid string, provider models.Provider, tenantID string) (string, error)
}

type adapterMSResolver interface {
	Get(provider models.Provider) (providers.AuthAdapter, error)
}

type vertexMSClient interface {
	GenerateContent(ctx context.Context, req dto.VertexGenerateRequest) (dto.VertexGenerateResponse, error)
}

type mappingService struct {
	store    mappingMSStore
	txs      transactionMSStore
	tokens   tokenMSProvider
	adapters adapterMSResolver
	vertex   vertexMSClient
	clockNow func() time.Time
}

func NewMappingService(store mappingMSStore, txs transactionMSStore, tokens tokenMSProvider, adapters adapterMSResolver, vertex vertexMSClient) *mappingService {
	return &mappingService{
		store:    store,
		txs:      txs,
		tokens:   tokens,
		adapters: adapters,
		vertex:   vertex,
		clockNow: time.Now,
	}
}

// GenerateSuggestions proposes a remote entity for each local key, AI
// first with a name-similarity fallback. Category keys map against the
// chart of accounts, merchant keys against contacts/vendors. Nothing is
// persisted; suggestions require explicit acceptance.
func (s *mappingService) GenerateSuggestions(ctx context.Context, uid string, provider models.Provider, tenantID string, mtype models.MappingType, localKeys []string) ([]dto.MappingSuggestion, error) {
	adapter, err := s.adapters.Get(provider)
	if err != nil {
		return nil, err
	}
	if !adapter.SupportsAccounts() {
		return nil, errs.NewValidationError(fmt.Sprintf("%s has no chart of accounts to map against", provider))
	}

	keys := normalizeKeys(localKeys)
	if len(keys) == 0 {
		return nil, errs.NewValidationError("no keys to map")
	}

	accessToken, err := s.tokens.GetValidAccessToken(ctx, uid, provider, tenantID)
	if err != nil {
		return nil, err
	}

	var accounts []dto.RemoteAccount
	if mtype == models.MappingMerchant {
		contacts, err := adapter.FetchContacts(ctx, accessToken, tenantID)
		if err != nil {
			return nil, err
		}
		for _, c := range contacts {
			accounts = append(accounts, dto.RemoteAccount{ID: c.ID, Name: c.Name})
		}
	} else {
		accounts, err = adapter.FetchAccounts(ctx, accessToken, tenantID)
		if err != nil {
			return nil, err
		}
	}
	if len(accounts) == 0 {
		return nil, errs.NewRemoteRejectedError(fmt.Sprintf("%s returned no %s entities to map against", provider, mtype))
	}

	log := logger.FromContext(ctx)

	byID := make(map[string]dto.RemoteAccount, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	aiPicks := s.askVertex(ctx, mtype, keys, accounts)

	suggestions := make([]dto.MappingSuggestion, 0, len(keys))
	for _, key := range keys {
		if pick, ok := aiPicks[key]; ok {
			if acc, valid := byID[pick.RemoteID]; valid {
				suggestions = append(suggestions, dto.MappingSuggestion{
					LocalKey:   key,
					RemoteID:   acc.ID,
					RemoteName: acc.Name,
					Confidence: clamp01(pick.Confidence),
				})
				continue
			}
			// Model invented an account id; fall through to similarity.
		}
		acc, score := bestMatch(key, accounts)
		suggestions = append(suggestions, dto.MappingSuggestion{
			LocalKey:   key,
			RemoteID:   acc.ID,
			RemoteName: acc.Name,
			Confidence: score,
		})
	}

	log.Info("mapping suggestions generated", "provider", provider, "type", mtype, "key_count", len(keys))
	return suggestions, nil
}

// AcceptMappings persists reviewed suggestions as active mappings.
func (s *mappingService) AcceptMappings(ctx context.Context, uid string, provider models.Provider, tenantID string, mtype models.MappingType, accepted []dto.MappingSuggestion, source models.MappingSource) error {
	if len(accepted) == 0 {
		return errs.NewValidationError("no mappings to save")
	}
	connID := models.ConnectionID(provider, tenantID)
	for _, m := range accepted {
		if m.LocalKey == "" || m.RemoteID == "" {
			return errs.NewValidationError("mapping needs both localKey and remoteId")
		}
		err := s.store.Upsert(ctx, uid, connID, mtype, &models.Mapping{
			LocalKey:   m.LocalKey,
			RemoteID:   m.RemoteID,
			RemoteName: m.RemoteName,
			Confidence: clamp01(m.Confidence),
			Source:     source,
			Active:     true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateMappings checks that every distinct category and merchant in the
// file has an active mapping. Read-only and safe to call repeatedly.
func (s *mappingService) ValidateMappings(ctx context.Context, uid string, provider models.Provider, tenantID, fileID string) (dto.MappingValidation, error) {
	adapter, err := s.adapters.Get(provider)
	if err != nil {
		return dto.MappingValidation{}, err
	}
	if !adapter.SupportsAccounts() {
		// Nothing to map for spreadsheet exports.
		return dto.MappingValidation{Valid: true, Missing: []string{}}, nil
	}

	txs, err := s.txs.ListByFile(ctx, uid, fileID)
	if err != nil {
		return dto.MappingValidation{}, err
	}

	connID := models.ConnectionID(provider, tenantID)
	missing := []string{}

	for _, mtype := range []models.MappingType{models.MappingCategory, models.MappingMerchant} {
		active, err := s.store.ListActive(ctx, uid, connID, mtype)
		if err != nil {
			return dto.MappingValidation{}, err
		}
		have := make(map[string]bool, len(active))
		for _, m := range active {
			have[models.NormalizeKey(m.LocalKey)] = true
		}

		seen := map[string]bool{}
		for _, tx := range txs {
			key := tx.Category
			if mtype == models.MappingMerchant {
				key = tx.Merchant
			}
			norm := models.NormalizeKey(key)
			if norm == "" || seen[norm] || have[norm] {
				continue
			}
			seen[norm] = true
			missing = append(missing, fmt.Sprintf("%s:%s", mtype, norm))
		}
	}

	sort.Strings(missing)
	return dto.MappingValidation{Valid: len(missing) == 0, Missing: missing}, nil
}

// ---- suggestion internals ----

const (
	suggestCategoryPrompt = `You map bank statement categories to accounting chart-of-accounts entries.
Reply with a JSON array only, no prose: [{"localKey": "...", "remoteId": "...", "confidence": 0.0}].
Use only account ids from the provided list. Omit keys you cannot map.`

	suggestMerchantPrompt = `You map bank statement merchant names to accounting contact/vendor records.
Reply with a JSON array only, no prose: [{"localKey": "...", "remoteId": "...", "confidence": 0.0}].
Use only contact ids from the provided list. Omit keys you cannot map.`
)

type vertexPick struct {
	RemoteID   string
	Confidence float64
}

// askVertex asks the model for proposals. Any failure degrades silently to
// the similarity fallback.
func (s *mappingService) askVertex(ctx context.Context, mtype models.MappingType, keys []string, accounts []dto.RemoteAccount) map[string]vertexPick {
	if s.vertex == nil {
		return nil
	}
	log := logger.FromContext(ctx)

	payload := struct {
		Keys     []string            `json:"keys"`
		Accounts []dto.RemoteAccount `json:"accounts"`
	}{Keys: keys, Accounts: accounts}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	system := suggestCategoryPrompt
	if mtype == models.MappingMerchant {
		system = suggestMerchantPrompt
	}
	resp, err := s.vertex.GenerateContent(ctx, dto.VertexGenerateRequest{
		System:      system,
		UserMessage: string(raw),
		Temperature: helpers.Ptr(float32(0.1)),
	})
	if err != nil {
		log.Warn("vertex suggestion failed, using similarity fallback", "error", err)
		return nil
	}

	var parsed []struct {
		LocalKey   string  `json:"localKey"`
		RemoteID   string  `json:"remoteId"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Text)), &parsed); err != nil {
		log.Warn("vertex suggestion unparseable, using similarity fallback", "error", err)
		return nil
	}

	picks := make(map[string]vertexPick, len(parsed))
	for _, p := range parsed {
		picks[models.NormalizeKey(p.LocalKey)] = vertexPick{RemoteID: p.RemoteID, Confidence: p.Confidence}
	}
	return picks
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// bestMatch scores accounts against the key by word overlap, with a bonus
// for substring containment.
func bestMatch(key string, accounts []dto.RemoteAccount) (dto.RemoteAccount, float64) {
	best := accounts[0]
	bestScore := 0.0
	for _, acc := range accounts {
		score := nameSimilarity(key, acc.Name)
		if score > bestScore {
			best = acc
			bestScore = score
		}
	}
	return best, bestScore
}

func nameSimilarity(a, b string) float64 {
	na, nb := models.NormalizeKey(a), models.NormalizeKey(b)
	if na == nb {
		return 1
	}
	wa, wb := strings.Fields(na), strings.Fields(nb)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	set := make(map[string]bool, len(wa))
	for _, w := range wa {
		set[w] = true
	}
	shared := 0
	for _, w := range wb {
		if set[w] {
			shared++
		}
	}
	union := len(wa) + len(wb) - shared
	score := float64(shared) / float64(union)

	if score < 0.8 && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		score += 0.2
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalizeKeys(keys []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		norm := models.NormalizeKey(k)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	sort.Strings(out)
	return out
}
