package ledger

// SeedBatch is a test helper that appends an issuance batch to the in-memory
// store without running any rule checks. Useful for backdating batches when
// exercising expiry behavior.
func SeedBatch(store Store, batch IssuanceBatch) {
	if mem, ok := store.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.batches[batch.TouristID] = append(mem.batches[batch.TouristID], batch)
	}
}
