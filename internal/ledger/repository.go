package ledger

import (
	"context"

	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/errors"
)

// Repository loads and saves the whole entry collection.
type Repository interface {
	Load(ctx context.Context) ([]FoodEntry, error)
	Save(ctx context.Context, entries []FoodEntry) error
}

// KVRepository keeps the collection as one JSON array under a fixed key.
type KVRepository struct {
	kv  db.KV
	key string
}

// NewRepository stores entries under db.KeyCalorieData.
func NewRepository(kv db.KV) *KVRepository {
	return &KVRepository{kv: kv, key: db.KeyCalorieData}
}

// Load reads and validates the stored collection. A missing key is an empty ledger.
func (r *KVRepository) Load(ctx context.Context) ([]FoodEntry, error) {
	data, ok, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []FoodEntry{}, nil
	}
	return Decode(r.key, data)
}

// Save re-serializes the entire collection and overwrites the stored value.
func (r *KVRepository) Save(ctx context.Context, entries []FoodEntry) error {
	data, err := Encode(entries)
	if err != nil {
		return errors.NewInternal(err)
	}
	return r.kv.Put(ctx, r.key, data)
}
