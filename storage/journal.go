package storage

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/storage/schema"
)

// Journal keeps the user operations this machine submitted, so they can be
// listed and reconciled with receipts later.
type Journal struct {
	db  Storage
	now func() time.Time
}

func NewJournal(db Storage) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Record stores rec. SubmittedAt is filled when zero.
func (j *Journal) Record(rec *schema.UserOpRecord) error {
	if rec.SubmittedAt == 0 {
		rec.SubmittedAt = j.now().Unix()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	hash := common.HexToHash(rec.UserOpHash)
	key := schema.UserOpStorageKey(common.HexToAddress(rec.Sender), hash)
	return j.db.BatchWrite(map[string][]byte{
		string(key):                             data,
		string(schema.UserOpHashIndexKey(hash)): key,
	})
}

// Get returns the record for userOpHash, or nil when it was never recorded.
func (j *Journal) Get(userOpHash common.Hash) (*schema.UserOpRecord, error) {
	key, err := j.db.GetKey(schema.UserOpHashIndexKey(userOpHash))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := j.db.GetKey(key)
	if err != nil {
		return nil, err
	}
	var rec schema.UserOpRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkIncluded attaches receipt data to a recorded operation. Unknown
// hashes are ignored.
func (j *Journal) MarkIncluded(userOpHash, txHash common.Hash, success bool, actualGasUsed string) error {
	rec, err := j.Get(userOpHash)
	if err != nil || rec == nil {
		return err
	}
	rec.TxHash = txHash.Hex()
	rec.Success = &success
	rec.ActualGas = actualGasUsed
	rec.IncludedAt = j.now().Unix()
	return j.Record(rec)
}

// List returns the operations sent by sender, newest first.
func (j *Journal) List(sender common.Address) ([]*schema.UserOpRecord, error) {
	items, err := j.db.GetByPrefix(schema.UserOpBySenderStoragePrefix(sender))
	if err != nil {
		return nil, err
	}
	records := make([]*schema.UserOpRecord, 0, len(items))
	for _, item := range items {
		var rec schema.UserOpRecord
		if err := json.Unmarshal(item.Value, &rec); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	sort.SliceStable(records, func(a, b int) bool {
		return records[a].SubmittedAt > records[b].SubmittedAt
	})
	return records, nil
}

// Pending returns the operations of sender without a receipt yet.
func (j *Journal) Pending(sender common.Address) ([]*schema.UserOpRecord, error) {
	all, err := j.List(sender)
	if err != nil {
		return nil, err
	}
	pending := all[:0]
	for _, rec := range all {
		if rec.TxHash == "" {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}
