package market

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const uploadKeyPrefix = "upload/"

// PendingUpload records an asset reference that has been pinned but whose
// listing transaction has not confirmed. A listing workflow that fails after
// the upload step leaves its entry behind, marked orphaned: the pinned asset
// is deliberately not retracted, and the journal is how operators find such
// orphans.
type PendingUpload struct {
	Ref       string    `json:"ref"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Orphaned  bool      `json:"orphaned"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal persists pending-upload records in badger.
type Journal struct {
	db *badger.DB
}

func NewJournal(db *badger.DB) *Journal {
	return &Journal{db: db}
}

// Record notes a freshly pinned asset reference before its transaction is
// submitted.
func (j *Journal) Record(entry PendingUpload) error {
	entry.CreatedAt = time.Now().UTC()
	return j.put(entry)
}

// MarkOrphaned flags an entry whose listing transaction was never accepted.
func (j *Journal) MarkOrphaned(ref, txHash, reason string) error {
	return j.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(uploadKey(ref))
		if err != nil {
			return err
		}
		var entry PendingUpload
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return err
		}
		entry.TxHash = txHash
		entry.Orphaned = true
		entry.Reason = reason
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(uploadKey(ref), data)
	})
}

// Clear removes an entry once its listing transaction confirmed.
func (j *Journal) Clear(ref string) error {
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(uploadKey(ref))
	})
}

// List returns every journaled upload, in-flight and orphaned alike.
func (j *Journal) List() ([]PendingUpload, error) {
	var entries []PendingUpload
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(uploadKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var entry PendingUpload
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

func (j *Journal) put(entry PendingUpload) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(uploadKey(entry.Ref), data)
	})
}

func uploadKey(ref string) []byte {
	return []byte(uploadKeyPrefix + ref)
}
