package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const watermarkKey = "meta:watermark"

// roundKey encodes rounds so that lexicographic key order matches numeric
// round order.
func roundKey(round uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'r'
	binary.BigEndian.PutUint64(key[1:], round)
	return key
}

// ldbStore implements Store over a LevelDB database. Entries are stored as
// JSON under "r"-prefixed keys; the watcher watermark lives under its own
// meta key.
type ldbStore struct {
	mu   sync.Mutex
	conn *leveldb.DB
}

// OpenLevelDB opens (or creates) the ledger database at path, recovering
// it first if a previous crash left it corrupted.
func OpenLevelDB(path string) (Store, error) {
	conn, err := leveldb.OpenFile(path, nil)
	if ldberrors.IsCorrupted(err) {
		conn, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &ldbStore{conn: conn}, nil
}

func (s *ldbStore) Get(round uint64) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(round)
}

func (s *ldbStore) get(round uint64) (*Entry, error) {
	raw, err := s.conn.Get(roundKey(round), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	entry := &Entry{}
	if err := json.Unmarshal(raw, entry); err != nil {
		return nil, fmt.Errorf("ledger: corrupt entry for round %d: %v", round, err)
	}
	return entry, nil
}

func (s *ldbStore) Record(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.get(entry.Round)
	if err != nil {
		return err
	}
	if err := checkTransition(prev, entry); err != nil {
		return err
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.conn.Put(roundKey(entry.Round), raw, nil)
}

func (s *ldbStore) Unresolved() ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Entry
	iter := s.conn.NewIterator(util.BytesPrefix([]byte("r")), nil)
	defer iter.Release()
	for iter.Next() {
		entry := &Entry{}
		if err := json.Unmarshal(iter.Value(), entry); err != nil {
			return nil, fmt.Errorf("ledger: corrupt entry at key %x: %v", iter.Key(), err)
		}
		if !entry.Status.Terminal() {
			out = append(out, entry)
		}
	}
	return out, iter.Error()
}

func (s *ldbStore) MaxRound() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter := s.conn.NewIterator(util.BytesPrefix([]byte("r")), nil)
	defer iter.Release()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return binary.BigEndian.Uint64(iter.Key()[1:]), iter.Error()
}

func (s *ldbStore) LastConfirmed() (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter := s.conn.NewIterator(util.BytesPrefix([]byte("r")), nil)
	defer iter.Release()
	for ok := iter.Last(); ok; ok = iter.Prev() {
		entry := &Entry{}
		if err := json.Unmarshal(iter.Value(), entry); err != nil {
			return nil, fmt.Errorf("ledger: corrupt entry at key %x: %v", iter.Key(), err)
		}
		if entry.Status == StatusConfirmed {
			return entry, nil
		}
	}
	return nil, iter.Error()
}

func (s *ldbStore) Watermark() (uint64, error) {
	raw, err := s.conn.Get([]byte(watermarkKey), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("ledger: corrupt watermark value")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (s *ldbStore) SetWatermark(block uint64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, block)
	return s.conn.Put([]byte(watermarkKey), raw, nil)
}

func (s *ldbStore) Close() error {
	return s.conn.Close()
}
