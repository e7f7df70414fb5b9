package media

import (
	"context"
	"errors"
)

// FallbackStore uploads to Primary and degrades to Secondary when Primary
// fails. OnFallback, when set, observes every primary failure.
type FallbackStore struct {
	Primary    Store
	Secondary  Store
	OnFallback func(ctx context.Context, err error)
}

// Upload implements Store.
func (f *FallbackStore) Upload(ctx context.Context, u Upload) (Stored, error) {
	if f.Primary != nil {
		st, err := f.Primary.Upload(ctx, u)
		if err == nil {
			return st, nil
		}
		if f.OnFallback != nil {
			f.OnFallback(ctx, err)
		}
	}
	return f.Secondary.Upload(ctx, u)
}

// Delete implements Store, routing the id to the store that issued it.
func (f *FallbackStore) Delete(ctx context.Context, id string) error {
	if f.Primary != nil {
		err := f.Primary.Delete(ctx, id)
		if !errors.Is(err, ErrUnknownID) {
			return err
		}
	}
	return f.Secondary.Delete(ctx, id)
}
