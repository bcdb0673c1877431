package client

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")
	sessionKey    = []byte("current")
)

// BoltStore persists tokens in a bbolt file so sessions survive restarts.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the session file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create session bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load() (Tokens, error) {
	var tokens Tokens
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(sessionKey)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &tokens); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		return nil
	})
	return tokens, err
}

func (s *BoltStore) Save(tokens Tokens) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putTokens(tx, tokens)
	})
}

// SetAccessToken replaces the access token within a single transaction.
func (s *BoltStore) SetAccessToken(token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		var tokens Tokens
		if data := tx.Bucket(bucketSession).Get(sessionKey); data != nil {
			if err := json.Unmarshal(data, &tokens); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
		}
		tokens.AccessToken = token
		return putTokens(tx, tokens)
	})
}

func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(sessionKey)
	})
}

func putTokens(tx *bbolt.Tx, tokens Tokens) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := tx.Bucket(bucketSession).Put(sessionKey, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
