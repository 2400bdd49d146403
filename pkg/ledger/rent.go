package ledger

// Rent determines the balance an account needs to be exempt from rent.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionYears      uint64

	// StorageOverhead is the number of bytes charged for every account on
	// top of its data.
	StorageOverhead uint64
}

// MinimumBalance returns the smallest rent exempt balance for an account
// holding dataLen bytes.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (r.StorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionYears
}

// IsExempt reports whether the balance covers an account holding dataLen
// bytes.
func (r Rent) IsExempt(lamports uint64, dataLen int) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
