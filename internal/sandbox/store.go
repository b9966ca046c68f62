package sandbox

import "fmt"

// Store is the per-invocation registry of nested instances and standalone
// memories. Indices are allocated monotonically from 0; a torn-down index
// is never reused within the invocation.
type Store struct {
	instances []*Instance
	memories  []*Memory
}

// NewStore returns an empty registry.
func NewStore() *Store {
	return &Store{}
}

// AddInstance registers a nested instance and returns its index.
func (s *Store) AddInstance(inst *Instance) uint32 {
	s.instances = append(s.instances, inst)
	return uint32(len(s.instances) - 1)
}

// Instance resolves an instance index.
func (s *Store) Instance(idx uint32) (*Instance, error) {
	if idx >= uint32(len(s.instances)) || s.instances[idx] == nil {
		return nil, fmt.Errorf("sandbox: invalid instance index %d", idx)
	}
	return s.instances[idx], nil
}

// InstanceTeardown releases an instance. The index stays unused afterwards.
func (s *Store) InstanceTeardown(idx uint32) error {
	if idx >= uint32(len(s.instances)) || s.instances[idx] == nil {
		return fmt.Errorf("sandbox: invalid instance index %d", idx)
	}
	s.instances[idx] = nil
	return nil
}

// AddMemory registers a standalone memory and returns its index.
func (s *Store) AddMemory(mem *Memory) uint32 {
	s.memories = append(s.memories, mem)
	return uint32(len(s.memories) - 1)
}

// Memory resolves a memory index.
func (s *Store) Memory(idx uint32) (*Memory, error) {
	if idx >= uint32(len(s.memories)) || s.memories[idx] == nil {
		return nil, fmt.Errorf("sandbox: invalid memory index %d", idx)
	}
	return s.memories[idx], nil
}

// MemoryTeardown releases a memory. The index stays unused afterwards.
func (s *Store) MemoryTeardown(idx uint32) error {
	if idx >= uint32(len(s.memories)) || s.memories[idx] == nil {
		return fmt.Errorf("sandbox: invalid memory index %d", idx)
	}
	s.memories[idx] = nil
	return nil
}
