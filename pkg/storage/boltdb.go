package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/klever-verify/core/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTriples    = []byte("solution_triples")
	bucketAdmissions = []byte("admissions")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "klever-core.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTriples, bucketAdmissions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutTriple upserts a solution triple.
func (s *BoltStore) PutTriple(key string, triple types.SolutionTriple) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(triple)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTriples).Put([]byte(key), data)
	})
}

// GetTriple reads a solution triple. ok is false if the key is absent.
func (s *BoltStore) GetTriple(key string) (types.SolutionTriple, bool, error) {
	var triple types.SolutionTriple
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTriples).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &triple)
	})
	return triple, found, err
}

// DeleteTriple removes a solution triple.
func (s *BoltStore) DeleteTriple(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTriples).Delete([]byte(key))
	})
}

// ListTriples returns every solution triple currently stored.
func (s *BoltStore) ListTriples() (map[string]types.SolutionTriple, error) {
	out := make(map[string]types.SolutionTriple)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTriples).ForEach(func(k, v []byte) error {
			var triple types.SolutionTriple
			if err := json.Unmarshal(v, &triple); err != nil {
				return err
			}
			out[string(k)] = triple
			return nil
		})
	})
	return out, err
}

// PutAdmission upserts an admission reservation record.
func (s *BoltStore) PutAdmission(rec types.AdmissionRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAdmissions).Put([]byte(rec.ID), data)
	})
}

// DeleteAdmission removes an admission reservation record.
func (s *BoltStore) DeleteAdmission(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAdmissions).Delete([]byte(id))
	})
}

// ListAdmissions returns every reservation record currently stored.
func (s *BoltStore) ListAdmissions() ([]types.AdmissionRecord, error) {
	var out []types.AdmissionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAdmissions).ForEach(func(k, v []byte) error {
			var rec types.AdmissionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}
