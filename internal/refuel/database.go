package refuel

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const refuelBucketName = "refuels"

// DB persists resolved refuel records
type DB interface {
	// SaveRefuel inserts or replaces a record by ID
	SaveRefuel(record *Record) error

	// GetRefuel retrieves a record by ID
	GetRefuel(id string) (*Record, error)

	// ListRefuels returns all records, newest first
	ListRefuels() ([]*Record, error)

	// DeleteRefuel removes a record
	DeleteRefuel(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements DB on a single bbolt file
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens the database and creates its bucket
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(refuelBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) SaveRefuel(record *Record) error {
	if record.ID == "" {
		return fmt.Errorf("refuel id is required")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling refuel: %w", err)
		}
		return tx.Bucket([]byte(refuelBucketName)).Put([]byte(record.ID), data)
	})
}

func (b *BoltDB) GetRefuel(id string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(refuelBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("refuel %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (b *BoltDB) ListRefuels() ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(refuelBucketName)).ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling refuel %s: %w", k, err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	SortByDateDesc(records)
	return records, nil
}

func (b *BoltDB) DeleteRefuel(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(refuelBucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("refuel %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}
