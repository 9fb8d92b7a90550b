package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/identity-bot/internal/crypto"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/dgellow/identity-bot/internal/session"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps one document per session. Provider updates run in a
// Firestore transaction so the read-modify-write is atomic per document.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	codec      codec
}

var (
	_ Store  = (*FirestoreStore)(nil)
	_ Pruner = (*FirestoreStore)(nil)
)

// NewFirestoreStore creates a new Firestore-backed session store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		collection: collection,
		codec:      codec{encryptor: encryptor},
	}, nil
}

func (s *FirestoreStore) doc(key session.Key) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(key.ID())
}

func (s *FirestoreStore) decode(snap *firestore.DocumentSnapshot) (*session.Session, error) {
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return s.codec.decodeSession(doc)
}

// Get retrieves a session, empty when the document does not exist
func (s *FirestoreStore) Get(ctx context.Context, key session.Key) (*session.Session, error) {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return session.New(), nil
		}
		return nil, fmt.Errorf("failed to get session from Firestore: %w", err)
	}
	return s.decode(snap)
}

func (s *FirestoreStore) Set(ctx context.Context, key session.Key, provider string, data session.ProviderSession) error {
	pd, err := s.codec.encodeProvider(data)
	if err != nil {
		return err
	}

	_, err = s.doc(key).Set(ctx, map[string]any{
		"user_id":         key.UserID,
		"conversation_id": key.ConversationID,
		"providers":       map[string]any{provider: pd},
		"updated_at":      time.Now().UTC(),
	}, firestore.Merge(
		[]string{"user_id"},
		[]string{"conversation_id"},
		[]string{"providers", provider},
		[]string{"updated_at"},
	))
	if err != nil {
		return fmt.Errorf("failed to store provider session: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateProvider(ctx context.Context, key session.Key, provider string, fn func(*session.ProviderSession) error) error {
	ref := s.doc(key)

	// fn may run more than once when Firestore retries the transaction; the
	// last rejection is what the caller sees.
	var fnErr error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = nil

		sess := session.New()
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return fmt.Errorf("failed to get session: %w", err)
		default:
			if sess, err = s.decode(snap); err != nil {
				return err
			}
		}

		ps := sess.Provider(provider)
		if err := fn(&ps); err != nil {
			fnErr = err
			return err
		}
		sess.SetProvider(provider, ps)

		doc, err := s.codec.encodeSession(key, sess)
		if err != nil {
			return err
		}
		return tx.Set(ref, doc)
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *FirestoreStore) SetDialog(ctx context.Context, key session.Key, state session.DialogState) error {
	_, err := s.doc(key).Set(ctx, map[string]any{
		"user_id":         key.UserID,
		"conversation_id": key.ConversationID,
		"dialog":          encodeDialog(state),
		"updated_at":      time.Now().UTC(),
	}, firestore.Merge(
		[]string{"user_id"},
		[]string{"conversation_id"},
		[]string{"dialog"},
		[]string{"updated_at"},
	))
	if err != nil {
		return fmt.Errorf("failed to store dialog state: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, key session.Key) error {
	if _, err := s.doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PruneIdle deletes session documents not updated within maxIdle
func (s *FirestoreStore) PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxIdle)
	iter := s.client.Collection(s.collection).Where("updated_at", "<", cutoff).Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("error iterating Firestore documents: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			log.LogErrorWithFields("storage", "Failed to delete idle session", map[string]any{
				"doc":   snap.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
