package solana

// TokenHolder is an owner of a positive-balance token account for some mint.
// This is our domain model, independent of the RPC account layout.
type TokenHolder struct {
	Owner        string
	TokenAccount string
	Balance      uint64
}

// Transfer is one lamport transfer within a batch.
type Transfer struct {
	Recipient string
	Lamports  uint64
}
