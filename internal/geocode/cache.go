package geocode

import (
	"encoding/json"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const cacheTTL = 30 * 24 * time.Hour

// Cache is a badger-backed coordinate→address cache. Street addresses do
// not change between headings or runs, so resolved entries are kept with
// a long TTL.
type Cache struct {
	db     *badger.DB
	logger *logrus.Entry
}

func NewCache(dir string, logger *logrus.Entry) (*Cache, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, logger: logger}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Get(key string) (Address, bool) {
	var addr Address
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &addr)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.WithError(err).Warnf("geocode cache read failed for %s", key)
		}
		return Address{}, false
	}
	return addr, true
}

func (c *Cache) Set(key string, addr Address) {
	data, err := json.Marshal(addr)
	if err != nil {
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data).WithTTL(cacheTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		c.logger.WithError(err).Warnf("geocode cache write failed for %s", key)
	}
}
