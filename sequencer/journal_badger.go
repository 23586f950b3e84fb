package sequencer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/opendlt/actionlog/internal/logz"
)

// Badger key prefixes for receipt storage
var (
	prefixByID   = []byte("rc:id:")   // action ID -> receipt
	prefixByHash = []byte("rc:hash:") // tx hash -> action ID
	prefixByTime = []byte("rc:ts:")   // finish time + action ID -> action ID
)

var (
	receiptEnc cbor.EncMode
	receiptDec cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	if receiptEnc, err = opts.EncMode(); err != nil {
		panic(fmt.Sprintf("receipt cbor encoder: %v", err))
	}
	if receiptDec, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(fmt.Sprintf("receipt cbor decoder: %v", err))
	}
}

// BadgerJournal persists receipts in a Badger database so they survive restarts
type BadgerJournal struct {
	db     *badger.DB
	logger *logz.Logger
}

var _ Journal = (*BadgerJournal)(nil)

// NewBadgerJournal opens (or creates) a receipt journal at dbPath. An empty
// path opens an in-memory database.
func NewBadgerJournal(dbPath string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger database at %s: %w", dbPath, err)
	}

	return &BadgerJournal{
		db:     db,
		logger: logz.New(logz.INFO, "receipt-journal"),
	}, nil
}

// Close closes the journal and releases resources
func (j *BadgerJournal) Close() error {
	j.logger.Info("Closing receipt journal")
	return j.db.Close()
}

// Record stores rc and indexes it by hash and finish time. Recording the
// same action again replaces the earlier receipt.
func (j *BadgerJournal) Record(rc *Receipt) error {
	if rc == nil || rc.ActionID == "" {
		return errors.New("receipt must carry an action ID")
	}

	data, err := receiptEnc.Marshal(rc)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	id := []byte(rc.ActionID)
	return j.db.Update(func(txn *badger.Txn) error {
		if prev, err := j.load(txn, rc.ActionID); err == nil {
			if err := txn.Delete(timeKey(prev)); err != nil {
				return fmt.Errorf("failed to drop time index: %w", err)
			}
		} else if !errors.Is(err, ErrReceiptNotFound) {
			return err
		}

		if err := txn.Set(join(prefixByID, id), data); err != nil {
			return fmt.Errorf("failed to store receipt: %w", err)
		}
		if rc.Hash != "" {
			if err := txn.Set(join(prefixByHash, []byte(rc.Hash)), id); err != nil {
				return fmt.Errorf("failed to store hash index: %w", err)
			}
		}
		if err := txn.Set(timeKey(rc), id); err != nil {
			return fmt.Errorf("failed to store time index: %w", err)
		}

		j.logger.Debug("Journaled receipt %s state=%s hash=%s", rc.ActionID, rc.State, rc.Hash)
		return nil
	})
}

// Get returns the receipt for a hash or action ID
func (j *BadgerJournal) Get(key string) (*Receipt, error) {
	var rc *Receipt
	err := j.db.View(func(txn *badger.Txn) error {
		var err error
		rc, err = j.load(txn, key)
		if !errors.Is(err, ErrReceiptNotFound) {
			return err
		}

		item, err := txn.Get(join(prefixByHash, []byte(key)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrReceiptNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lookup hash index: %w", err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rc, err = j.load(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// Recent returns up to n receipts ordered by finish time, newest first.
// n <= 0 returns every receipt.
func (j *BadgerJournal) Recent(n int) ([]*Receipt, error) {
	var out []*Receipt

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefixByTime
		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration must seek past the last key with the prefix
		seek := join(prefixByTime, []byte{0xff})
		for it.Seek(seek); it.ValidForPrefix(prefixByTime); it.Next() {
			if n > 0 && len(out) >= n {
				break
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rc, err := j.load(txn, string(id))
			if err != nil {
				j.logger.Warn("Skipping unreadable receipt %s: %v", id, err)
				continue
			}
			out = append(out, rc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return out, nil
}

// Count returns the number of stored receipts
func (j *BadgerJournal) Count() (int, error) {
	var count int
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixByID
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (j *BadgerJournal) load(txn *badger.Txn, id string) (*Receipt, error) {
	item, err := txn.Get(join(prefixByID, []byte(id)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt %s: %w", id, err)
	}

	var rc Receipt
	err = item.Value(func(val []byte) error {
		return receiptDec.Unmarshal(val, &rc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt %s: %w", id, err)
	}
	return &rc, nil
}

// timeKey orders receipts by finish time, ties broken by action ID
func timeKey(rc *Receipt) []byte {
	key := make([]byte, len(prefixByTime)+8, len(prefixByTime)+8+len(rc.ActionID))
	copy(key, prefixByTime)
	binary.BigEndian.PutUint64(key[len(prefixByTime):], uint64(rc.FinishedAt.UnixNano()))
	return append(key, rc.ActionID...)
}

func join(prefix, suffix []byte) []byte {
	key := make([]byte, 0, len(prefix)+len(suffix))
	key = append(key, prefix...)
	return append(key, suffix...)
}
