package store

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

type mappingStore struct {
	client *firestore.Client
}

func NewMappingStore(client *firestore.Client) *mappingStore {
	return &mappingStore{client: client}
}

func (s *mappingStore) collection(uid, connID string, mtype models.MappingType) *firestore.CollectionRef {
	name := "categoryMappings"
	if mtype == models.MappingMerchant {
		name = "merchantMappings"
	}
	return s.client.Collection("users").Doc(uid).
		Collection("connections").Doc(connID).
		Collection(name)
}

// docID sanitizes the normalized key into a Firestore document ID.
func docID(localKey string) string {
	return strings.ReplaceAll(models.NormalizeKey(localKey), "/", "∕")
}

// Upsert writes the mapping keyed by its local key, so there is at most one
// mapping per (connection, localKey).
func (s *mappingStore) Upsert(ctx context.Context, uid, connID string, mtype models.MappingType, m *models.Mapping) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.LocalKey = models.NormalizeKey(m.LocalKey)
	if _, err := s.collection(uid, connID, mtype).Doc(docID(m.LocalKey)).Set(ctx, m); err != nil {
		return errs.NewDatabaseError("mapping.upsert", err.Error())
	}
	return nil
}

func (s *mappingStore) Get(ctx context.Context, uid, connID string, mtype models.MappingType, localKey string) (*models.Mapping, error) {
	doc, err := s.collection(uid, connID, mtype).Doc(docID(localKey)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, errs.NewNotFoundError("mapping not found")
	}
	if err != nil {
		return nil, errs.NewDatabaseError("mapping.get", err.Error())
	}
	var m models.Mapping
	if err := doc.DataTo(&m); err != nil {
		return nil, errs.NewDatabaseError("mapping.get", err.Error())
	}
	return &m, nil
}

func (s *mappingStore) ListActive(ctx context.Context, uid, connID string, mtype models.MappingType) ([]*models.Mapping, error) {
	docs, err := s.collection(uid, connID, mtype).
		Where("active", "==", true).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("mapping.list", err.Error())
	}
	mappings := make([]*models.Mapping, 0, len(docs))
	for _, d := range docs {
		var m models.Mapping
		if err := d.DataTo(&m); err != nil {
			return nil, errs.NewDatabaseError("mapping.list", err.Error())
		}
		mappings = append(mappings, &m)
	}
	return mappings, nil
}
