package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ludio/questplayer/internal/core"
	bolt "go.etcd.io/bbolt"
)

type BoltProgressStore struct {
	db *bolt.DB
}

const boltProgressBucket = "ludio-progress"
const boltProgressKey = "progress"

func NewBoltProgressStore(path string) (*BoltProgressStore, error) {
	if path == "" {
		return nil, errors.New("storage: required bolt path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600,
		&bolt.Options{Timeout: time.Second},
	)
	if err != nil {
		return nil, fmt.Errorf("storage: opening bolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, berr := tx.CreateBucketIfNotExists([]byte(boltProgressBucket))
		return berr
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: cant init bucket: %w", err)
	}

	return &BoltProgressStore{db: db}, nil
}

func (s *BoltProgressStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltProgressStore) Save(ctx context.Context, p *core.Progress) error {
	if s.db == nil {
		return errors.New("storage: bolt not init")
	} else if p == nil {
		return errors.New("storage: required progress")
	} else if err := ctx.Err(); err != nil {
		return err
	}
	if p.PlaylistID == "" {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("storage: cant marshal progress: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltProgressBucket))
		if b == nil {
			return errors.New("storage: bucket miss")
		}
		return b.Put([]byte(boltProgressKey), data)
	})
}

func (s *BoltProgressStore) Load(ctx context.Context) (*core.Progress, error) {
	if s.db == nil {
		return nil, errors.New("storage: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	var p *core.Progress
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltProgressBucket))
		if b == nil {
			return errors.New("storage: bucket miss")
		}
		value := b.Get([]byte(boltProgressKey))
		if value == nil {
			return nil
		}
		res := &core.Progress{}
		if err := json.Unmarshal(value, res); err != nil {
			return fmt.Errorf("storage: cant unmarshal progress: %w", err)
		}
		p = res
		return nil
	}); err != nil {
		return nil, err
	}
	return p.CloneProgress(), nil
}

func (s *BoltProgressStore) Clear(ctx context.Context) error {
	if s.db == nil {
		return errors.New("storage: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltProgressBucket))
		if b == nil {
			return errors.New("storage: bucket miss")
		}
		return b.Delete([]byte(boltProgressKey))
	})
}
