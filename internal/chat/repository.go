package chat

import (
	"context"

	"github.com/zzeiidann/DNAI/internal/db"
	"github.com/zzeiidann/DNAI/internal/errors"
)

// Repository loads and saves the whole store state.
type Repository interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
}

// KVRepository keeps the threads and the active id under two fixed keys.
type KVRepository struct {
	kv db.KV
}

// NewRepository stores threads under db.KeyConversations and the active id
// under db.KeyActiveConversation.
func NewRepository(kv db.KV) *KVRepository {
	return &KVRepository{kv: kv}
}

// Load reads both keys. Missing keys are an empty store.
func (r *KVRepository) Load(ctx context.Context) (State, error) {
	var st State

	data, ok, err := r.kv.Get(ctx, db.KeyConversations)
	if err != nil {
		return State{}, err
	}
	if ok {
		if st.Conversations, err = DecodeConversations(db.KeyConversations, data); err != nil {
			return State{}, err
		}
	}

	data, ok, err = r.kv.Get(ctx, db.KeyActiveConversation)
	if err != nil {
		return State{}, err
	}
	if ok {
		if st.ActiveID, err = DecodeActive(db.KeyActiveConversation, data); err != nil {
			return State{}, err
		}
	}
	return st, nil
}

// Save overwrites both keys.
func (r *KVRepository) Save(ctx context.Context, st State) error {
	convs, err := EncodeConversations(st.Conversations)
	if err != nil {
		return errors.NewInternal(err)
	}
	active, err := EncodeActive(st.ActiveID)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := r.kv.Put(ctx, db.KeyConversations, convs); err != nil {
		return err
	}
	return r.kv.Put(ctx, db.KeyActiveConversation, active)
}
