package store

import (
	"context"

	"cloud.google.com/go/firestore"

	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/internal/models"
)

// transactionStore reads transactions the extraction pipeline wrote for an
// uploaded statement file. This service never writes them.
type transactionStore struct {
	client *firestore.Client
}

func NewTransactionStore(client *firestore.Client) *transactionStore {
	return &transactionStore{client: client}
}

func (s *transactionStore) collection(uid, fileID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).
		Collection("files").Doc(fileID).
		Collection("transactions")
}

// ListByFile returns the file's transactions in statement order.
func (s *transactionStore) ListByFile(ctx context.Context, uid, fileID string) ([]*models.Transaction, error) {
	docs, err := s.collection(uid, fileID).OrderBy("index", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("transaction.listByFile", err.Error())
	}
	txs := make([]*models.Transaction, 0, len(docs))
	for _, d := range docs {
		var t models.Transaction
		if err := d.DataTo(&t); err != nil {
			return nil, errs.NewDatabaseError("transaction.listByFile", err.Error())
		}
		txs = append(txs, &t)
	}
	return txs, nil
}
