package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection  = "idempotency_keys"
	defaultMaxAttempts = 5
	defaultPurgeLimit  = 100
)

// FirestoreOption configures a FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection sets the collection holding key documents.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithMaxAttempts bounds transaction retries on contention.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(s *FirestoreStore) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// FirestoreStore implements Store with one document per key, updated in transactions.
// Expired documents are removed by CleanupExpired or a Firestore TTL policy on expires_at.
type FirestoreStore struct {
	client      *firestore.Client
	collection  string
	maxAttempts int
}

// NewFirestoreStore returns a store writing to client.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{client: client, collection: defaultCollection, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Reserve implements Store.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	var out Reservation
	err := s.transact(ctx, key, func(tx *firestore.Transaction, ref *firestore.DocumentRef, stored Record, found bool) error {
		if found && !stored.expired(now) {
			var err error
			out, err = evaluate(stored, fingerprint)
			return err
		}
		record := pendingRecord(key, fingerprint, now, normalizeTTL(ttl))
		out = Reservation{State: ReservationStateNew, Record: record}
		return tx.Set(ref, record)
	})
	return out, err
}

// SaveResponse implements Store.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	return s.transact(ctx, key, func(tx *firestore.Transaction, ref *firestore.DocumentRef, stored Record, found bool) error {
		record, err := complete(stored, found, key, fingerprint, resp, now.UTC(), normalizeTTL(ttl))
		if err != nil {
			return err
		}
		return tx.Set(ref, record)
	})
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key, fingerprint string) error {
	return s.transact(ctx, key, func(tx *firestore.Transaction, ref *firestore.DocumentRef, stored Record, found bool) error {
		if !found || stored.Fingerprint != fingerprint {
			return nil
		}
		return tx.Delete(ref)
	})
}

// CleanupExpired deletes up to limit expired documents in one batch.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultPurgeLimit
	}
	docs, err := s.client.Collection(s.collection).
		Where("expires_at", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

type txFunc func(tx *firestore.Transaction, ref *firestore.DocumentRef, stored Record, found bool) error

// transact loads the key document inside a transaction and hands it to fn.
func (s *FirestoreStore) transact(ctx context.Context, key string, fn txFunc) error {
	ref := s.client.Collection(s.collection).Doc(storageKey(key))
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var stored Record
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			return fn(tx, ref, Record{}, false)
		case err != nil:
			return err
		}
		if err := snap.DataTo(&stored); err != nil {
			return err
		}
		return fn(tx, ref, stored, true)
	}, firestore.MaxAttempts(s.maxAttempts))
}
