package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/statementdesk/ledgerlink/internal/crypto"
	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

// connectionStore persists connections with their token record embedded.
// Token secrets are encrypted on write and decrypted on read; nothing
// outside this store ever sees ciphertext, nothing outside the services
// that need them ever sees plaintext.
type connectionStore struct {
	client *firestore.Client
	crypto crypto.Encrypter
}

func NewConnectionStore(client *firestore.Client, crypto crypto.Encrypter) *connectionStore {
	return &connectionStore{client: client, crypto: crypto}
}

func (s *connectionStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("connections")
}

// Upsert writes the connection keyed by its deterministic ID; last write
// wins, no merge.
func (s *connectionStore) Upsert(ctx context.Context, uid string, conn *models.Connection) error {
	now := time.Now()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now
	if conn.ID == "" {
		conn.ID = models.ConnectionID(conn.Provider, conn.TenantID)
	}

	sealed, err := s.sealToken(ctx, conn.Token)
	if err != nil {
		return err
	}
	stored := *conn
	stored.Token = sealed

	if _, err := s.collection(uid).Doc(conn.ID).Set(ctx, &stored); err != nil {
		return errs.NewDatabaseError("connection.upsert", err.Error())
	}
	return nil
}

func (s *connectionStore) Get(ctx context.Context, uid, connID string) (*models.Connection, error) {
	doc, err := s.collection(uid).Doc(connID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, errs.NewNotFoundError("connection not found")
	}
	if err != nil {
		return nil, errs.NewDatabaseError("connection.get", err.Error())
	}
	var conn models.Connection
	if err := doc.DataTo(&conn); err != nil {
		return nil, errs.NewDatabaseError("connection.get", err.Error())
	}
	open, err := s.openToken(ctx, conn.Token)
	if err != nil {
		return nil, err
	}
	conn.Token = open
	return &conn, nil
}

// ListActive returns the user's active connections for one provider,
// without token secrets.
func (s *connectionStore) ListActive(ctx context.Context, uid string, provider models.Provider) ([]*models.Connection, error) {
	q := s.collection(uid).Query.Where("active", "==", true)
	if provider != "" {
		q = q.Where("provider", "==", string(provider))
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("connection.list", err.Error())
	}
	conns := make([]*models.Connection, 0, len(docs))
	for _, d := range docs {
		var c models.Connection
		if err := d.DataTo(&c); err != nil {
			return nil, errs.NewDatabaseError("connection.list", err.Error())
		}
		c.Token = nil // listings never carry secrets
		conns = append(conns, &c)
	}
	return conns, nil
}

// Deactivate soft-deletes: the connection row stays for history.
func (s *connectionStore) Deactivate(ctx context.Context, uid, connID string) error {
	_, err := s.collection(uid).Doc(connID).Update(ctx, []firestore.Update{
		{Path: "active", Value: false},
		{Path: "updatedAt", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return errs.NewNotFoundError("connection not found")
	}
	if err != nil {
		return errs.NewDatabaseError("connection.deactivate", err.Error())
	}
	return nil
}

// UpdateToken replaces the token record only. Used by refresh.
func (s *connectionStore) UpdateToken(ctx context.Context, uid, connID string, token *models.TokenRecord) error {
	sealed, err := s.sealToken(ctx, token)
	if err != nil {
		return err
	}
	_, err = s.collection(uid).Doc(connID).Update(ctx, []firestore.Update{
		{Path: "token", Value: sealed},
		{Path: "updatedAt", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return errs.NewNotFoundError("connection not found")
	}
	if err != nil {
		return errs.NewDatabaseError("connection.updateToken", err.Error())
	}
	return nil
}

// MarkUnrecoverable flags the credentials as terminally dead (revoked grant).
func (s *connectionStore) MarkUnrecoverable(ctx context.Context, uid, connID string) error {
	_, err := s.collection(uid).Doc(connID).Update(ctx, []firestore.Update{
		{Path: "token.unrecoverable", Value: true},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errs.NewDatabaseError("connection.markUnrecoverable", err.Error())
	}
	return nil
}

// ---- encryption boundary ----

func (s *connectionStore) sealToken(ctx context.Context, token *models.TokenRecord) (*models.TokenRecord, error) {
	if token == nil {
		return nil, nil
	}
	access, err := s.crypto.KmsEncrypt(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.crypto.KmsEncrypt(ctx, token.RefreshToken)
	if err != nil {
		return nil, err
	}
	sealed := *token
	sealed.AccessToken = access
	sealed.RefreshToken = refresh
	return &sealed, nil
}

func (s *connectionStore) openToken(ctx context.Context, token *models.TokenRecord) (*models.TokenRecord, error) {
	if token == nil {
		return nil, nil
	}
	access, err := s.crypto.KmsDecrypt(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.crypto.KmsDecrypt(ctx, token.RefreshToken)
	if err != nil {
		return nil, err
	}
	open := *token
	open.AccessToken = access
	open.RefreshToken = refresh
	return &open, nil
}
