package cache

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/golang/snappy"
)

type snappyStore struct {
	next   Store
	logger log.Logger
}

// NewSnappyStore makes a new snappy encoding store wrapper. Values are
// compressed on the way in and decompressed on the way out; an entry that
// fails to decode is treated as missing.
func NewSnappyStore(next Store, logger log.Logger) Store {
	return &snappyStore{
		next:   next,
		logger: logger,
	}
}

func (s *snappyStore) Put(key, value []byte) error {
	return s.next.Put(key, snappy.Encode(nil, value))
}

func (s *snappyStore) Get(key []byte) ([]byte, bool, error) {
	buf, found, err := s.next.Get(key)
	if err != nil || !found {
		return nil, found, err
	}

	d, err := snappy.Decode(nil, buf)
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to decode stored entry", "err", err)
		return nil, false, nil
	}
	return d, true, nil
}

func (s *snappyStore) DeletePrefix(prefix []byte) error {
	return s.next.DeletePrefix(prefix)
}

func (s *snappyStore) Stop() error {
	return s.next.Stop()
}
