package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	instanceKeyPrefix     = "instance:"
	instanceIndexPrefix   = "instance:index:status:"
	historyKeyPrefix      = "history:"
	historySequencePrefix = "history-seq:"
)

// BadgerStore persists instances and history in Badger.
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
}

// OpenBadgerStore opens a Badger database at path for hub usage.
func OpenBadgerStore(path string, syncWrites bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = syncWrites
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

// NewBadgerStore wraps an existing Badger DB.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db cannot be nil")
	}
	return &BadgerStore{db: db}, nil
}

// SaveInstance persists one instance at "instance:{id}" plus a status
// index key for filtered listing.
func (s *BadgerStore) SaveInstance(ctx context.Context, instance *Instance) error {
	if instance == nil {
		return fmt.Errorf("instance cannot be nil")
	}
	data, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := []byte(instanceDataKey(instance.ID))
	newIndexKey := []byte(instanceIndexKey(instance.Status, instance.ID))

	return s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var oldStatus Status
		if item, err := txn.Get(key); err == nil {
			var previous Instance
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &previous) }); err == nil {
				oldStatus = previous.Status
			}
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(newIndexKey, []byte{}); err != nil {
			return err
		}
		if oldStatus != "" && oldStatus != instance.Status {
			_ = txn.Delete([]byte(instanceIndexKey(oldStatus, instance.ID)))
		}
		return nil
	})
}

// GetInstance loads one instance by id.
func (s *BadgerStore) GetInstance(ctx context.Context, id string) (*Instance, error) {
	var instance Instance
	err := s.db.View(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := txn.Get([]byte(instanceDataKey(id)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrInstanceNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &instance) })
	})
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// ListInstances queries instances by status with pagination.
func (s *BadgerStore) ListInstances(ctx context.Context, filter ListFilter) ([]*Instance, int, error) {
	instances := make([]*Instance, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		if filter.Status != "" {
			prefix := []byte(instanceIndexPrefixFor(filter.Status))
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				id := strings.TrimPrefix(string(it.Item().Key()), instanceIndexPrefixFor(filter.Status))
				instance, err := getInstanceInTxn(txn, id)
				if err != nil {
					continue
				}
				instances = append(instances, instance)
			}
			return nil
		}

		prefix := []byte(instanceKeyPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			key := string(it.Item().Key())
			if strings.HasPrefix(key, instanceIndexPrefix) {
				continue
			}
			var instance Instance
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &instance) }); err != nil {
				continue
			}
			instances = append(instances, &instance)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(instances, func(i, j int) bool {
		if instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].ID < instances[j].ID
		}
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})

	total := len(instances)
	offset, end := pageBounds(total, filter.Offset, filter.Limit)
	return instances[offset:end], total, nil
}

// DeleteInstance removes one instance, its index entry, and its history.
func (s *BadgerStore) DeleteInstance(ctx context.Context, id string) error {
	historyKeys := make([][]byte, 0)
	if err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(historyPrefixFor(id))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			historyKeys = append(historyKeys, it.Item().KeyCopy(nil))
		}
		return nil
	}); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		key := []byte(instanceDataKey(id))
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrInstanceNotFound
			}
			return err
		}

		var instance Instance
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &instance) }); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		_ = txn.Delete([]byte(instanceIndexKey(instance.Status, id)))
		_ = txn.Delete([]byte(historySequenceKey(id)))
		for _, hk := range historyKeys {
			if err := txn.Delete(hk); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendEvent appends one history event at "history:{id}:{seq:020d}".
func (s *BadgerStore) AppendEvent(ctx context.Context, event HistoryEvent) (uint64, error) {
	if event.InstanceID == "" {
		return 0, fmt.Errorf("history event instance_id cannot be empty")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var sequence uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		seqKey := []byte(historySequenceKey(event.InstanceID))
		current := uint64(0)
		item, err := txn.Get(seqKey)
		switch {
		case err == nil:
			if err := item.Value(func(v []byte) error {
				parsed, parseErr := strconv.ParseUint(string(v), 10, 64)
				if parseErr != nil {
					return parseErr
				}
				current = parsed
				return nil
			}); err != nil {
				return err
			}
		case err == badger.ErrKeyNotFound:
		default:
			return err
		}

		sequence = current + 1
		event.Sequence = sequence

		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal history event: %w", err)
		}
		if err := txn.Set(seqKey, []byte(strconv.FormatUint(sequence, 10))); err != nil {
			return err
		}
		return txn.Set([]byte(historyEventKey(event.InstanceID, sequence)), data)
	})
	if err != nil {
		return 0, err
	}
	return sequence, nil
}

// History returns all events for one instance in sequence order.
func (s *BadgerStore) History(ctx context.Context, instanceID string) ([]HistoryEvent, error) {
	prefix := []byte(historyPrefixFor(instanceID))
	events := make([]HistoryEvent, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var event HistoryEvent
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &event) }); err != nil {
				return fmt.Errorf("decode history event: %w", err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Close closes the database when this store owns it.
func (s *BadgerStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func getInstanceInTxn(txn *badger.Txn, id string) (*Instance, error) {
	item, err := txn.Get([]byte(instanceDataKey(id)))
	if err != nil {
		return nil, err
	}
	var instance Instance
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &instance) }); err != nil {
		return nil, err
	}
	return &instance, nil
}

func instanceDataKey(id string) string {
	return instanceKeyPrefix + id
}

func instanceIndexPrefixFor(status Status) string {
	return instanceIndexPrefix + string(status) + ":"
}

func instanceIndexKey(status Status, id string) string {
	return instanceIndexPrefixFor(status) + id
}

func historyPrefixFor(instanceID string) string {
	return fmt.Sprintf("%s%s:", historyKeyPrefix, instanceID)
}

func historySequenceKey(instanceID string) string {
	return historySequencePrefix + instanceID
}

func historyEventKey(instanceID string, sequence uint64) string {
	return fmt.Sprintf("%s%s:%020d", historyKeyPrefix, instanceID, sequence)
}
