package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ggonzalez94/solchat/internal/model"
	bolt "go.etcd.io/bbolt"
)

var conversationsBucket = []byte("conversations")

// Bolt keeps each conversation as one JSON array keyed by user id. bbolt
// serializes writers, so Append is atomic per call.
type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create conversation store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open conversation bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init conversation bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Bolt) Register(_ context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(conversationsBucket)
		if bucket.Get([]byte(userID)) != nil {
			return nil
		}
		return bucket.Put([]byte(userID), []byte("[]"))
	})
}

func (b *Bolt) Append(_ context.Context, userID string, turns ...model.Turn) ([]model.Turn, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	var out []model.Turn
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(conversationsBucket)
		out = append(decodeTurns(bucket.Get([]byte(userID))), turns...)
		enc, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(userID), enc)
	})
	if err != nil {
		return nil, fmt.Errorf("append turns: %w", err)
	}
	return out, nil
}

func (b *Bolt) Reset(_ context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Put([]byte(userID), []byte("[]"))
	})
}

func (b *Bolt) Read(_ context.Context, userID string) ([]model.Turn, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	var out []model.Turn
	err := b.db.View(func(tx *bolt.Tx) error {
		out = decodeTurns(tx.Bucket(conversationsBucket).Get([]byte(userID)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	return out, nil
}

// decodeTurns treats a malformed value as an empty conversation.
func decodeTurns(v []byte) []model.Turn {
	turns := make([]model.Turn, 0)
	if len(v) == 0 {
		return turns
	}
	if err := json.Unmarshal(v, &turns); err != nil {
		return make([]model.Turn, 0)
	}
	return turns
}
