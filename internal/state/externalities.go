package state

// Externalities is the capability set a runtime invocation requires from
// the embedding system: byte-keyed storage, a commitment over the full
// current state, and the chain identity.
//
// Implementations must be deterministic: two calls observing the same
// prior call sequence observe identical results. Operations are assumed
// infallible; an embedder that cannot satisfy them must not dispatch the
// invocation. The executor holds the Externalities exclusively for the
// duration of a call.
type Externalities interface {
	// Storage returns the value stored under key, if any.
	Storage(key []byte) ([]byte, bool)
	// SetStorage stores value under key, replacing any previous value.
	SetStorage(key, value []byte)
	// ClearStorage removes the entry under key.
	ClearStorage(key []byte)
	// ExistsStorage reports whether an entry exists under key.
	ExistsStorage(key []byte) bool
	// ClearPrefix removes every entry whose key starts with prefix.
	ClearPrefix(prefix []byte)
	// StorageRoot returns the 32-byte commitment over the full state.
	StorageRoot() [32]byte
	// ChainID returns the chain identity.
	ChainID() uint64
}
