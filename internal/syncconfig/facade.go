package syncconfig

import "strings"

const rootKey = "sync"

// Facade is a typed view over a subtree of the sync.* option tree
// (spec.md §4.2). The root facade covers "sync.*"; a service facade
// (via ForService) prepends "services.<name>." to every key.
type Facade struct {
	store  OptionStore
	prefix string // dotted prefix, e.g. "sync" or "sync.services.mydrive"
}

// NewFacade creates the root facade, ensuring sync.services exists.
func NewFacade(store OptionStore) *Facade {
	f := &Facade{store: store, prefix: rootKey}
	if _, ok := store.Get(f.key("services")); !ok {
		store.Set(f.key("services"), map[string]any{})
	}
	return f
}

// ForService returns a facade scoped to sync.services.<name>.
func (f *Facade) ForService(name string) *Facade {
	return &Facade{store: f.store, prefix: f.prefix + ".services." + name}
}

// key joins the facade prefix with a relative path.
func (f *Facade) key(path ...string) string {
	if len(path) == 0 {
		return f.prefix
	}
	return f.prefix + "." + strings.Join(path, ".")
}

// Get returns the value at path relative to this facade, or def if absent.
func (f *Facade) Get(def any, path ...string) any {
	v, ok := f.store.Get(f.key(path...))
	if !ok {
		return def
	}
	return v
}

// GetString is a typed convenience wrapper around Get.
func (f *Facade) GetString(def string, path ...string) string {
	v := f.Get(def, path...)
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// GetInt64 is a typed convenience wrapper around Get.
func (f *Facade) GetInt64(def int64, path ...string) int64 {
	v := f.Get(def, path...)
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return def
	}
}

// GetBool is a typed convenience wrapper around Get.
func (f *Facade) GetBool(def bool, path ...string) bool {
	v := f.Get(def, path...)
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Set writes value at path relative to this facade. Writes persist
// immediately via the underlying option store; there is no transactionality.
func (f *Facade) Set(value any, path ...string) {
	f.store.Set(f.key(path...), value)
}

// SetPatch applies an object patch: every key in patch is set relative to
// this facade's root, supporting the (objectPatch) form of Set from
// spec.md §4.2 alongside the (path, value) form above.
func (f *Facade) SetPatch(patch map[string]any) {
	for k, v := range patch {
		f.store.Set(f.key(k), v)
	}
}

// Clear wipes every key under this facade's prefix.
func (f *Facade) Clear() {
	for _, k := range f.store.Keys(f.prefix) {
		if k == f.prefix || strings.HasPrefix(k, f.prefix+".") {
			f.store.Delete(k)
		}
	}
}
