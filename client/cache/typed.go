package cache

import "context"

// Value returns the value under key as a T.
func Value[T any](s *Store, key Key) (T, bool) {
	v, ok := s.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Update applies fn to the T under key. A missing value, or one of another
// type, reaches fn as the zero T with ok=false.
func Update[T any](s *Store, key Key, fn func(prev T, ok bool) T) uint64 {
	return s.Set(key, func(prev any, ok bool) any {
		t, isT := prev.(T)
		return fn(t, ok && isT)
	})
}

// UpdateExisting applies fn to the T under key only when the key holds a
// value. A value of another type is kept as is. It reports whether the key
// held a value.
func UpdateExisting[T any](s *Store, key Key, fn func(prev T) T) bool {
	_, present := s.SetIfPresent(key, func(prev any) any {
		if t, ok := prev.(T); ok {
			return fn(t)
		}
		return prev
	})
	return present
}

// Fetch is the typed form of Store.Fetch.
func Fetch[T any](ctx context.Context, s *Store, key Key, load func(ctx context.Context) (T, error)) (T, error) {
	v, err := s.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
