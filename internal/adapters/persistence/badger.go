package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	model "github.com/okian/vitals/internal/domain/model"
	"github.com/okian/vitals/pkg/metrics"
)

const seriesPrefix = "series/"

// Badger stores one compressed block per metric series.
type Badger struct {
	db    *badger.DB
	codec *Codec
}

// OpenBadger opens or creates a badger directory at path.
func OpenBadger(_ context.Context, path string, level int) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	codec, err := NewCodec(level)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Badger{db: db, codec: codec}, nil
}

func (b *Badger) Name() string { return DriverBadger }

// Save merges each series with the stored block and rewrites it.
func (b *Badger) Save(ctx context.Context, series map[model.MetricType][]model.Sample) error {
	start := time.Now()
	err := b.save(ctx, series)
	metrics.RecordPersistence(DriverBadger, "save", err, metrics.Since(start))
	return err
}

func (b *Badger) save(ctx context.Context, series map[model.MetricType][]model.Sample) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for t, samples := range series {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := []byte(seriesPrefix + string(t))
			stored, err := b.get(txn, t, key)
			if err != nil {
				return err
			}
			if err := txn.Set(key, b.codec.Encode(mergeSeries(stored, samples))); err != nil {
				return fmt.Errorf("failed to write series %s: %w", t, err)
			}
		}
		return nil
	})
}

func (b *Badger) get(txn *badger.Txn, t model.MetricType, key []byte) ([]model.Sample, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []model.Sample
	err = item.Value(func(val []byte) error {
		out, err = b.codec.Decode(t, val)
		return err
	})
	return out, err
}

// Load decodes every stored series.
func (b *Badger) Load(ctx context.Context) ([]model.Sample, error) {
	start := time.Now()
	var out []model.Sample
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(seriesPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			t := model.MetricType(strings.TrimPrefix(string(item.Key()), seriesPrefix))
			err := item.Value(func(val []byte) error {
				samples, err := b.codec.Decode(t, val)
				if err != nil {
					return fmt.Errorf("series %s: %w", t, err)
				}
				out = append(out, samples...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	metrics.RecordPersistence(DriverBadger, "load", err, metrics.Since(start))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) Close() error {
	b.codec.Close()
	return b.db.Close()
}
