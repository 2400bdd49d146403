package pointer

// String returns a pointer to the provided string value
func String(value string) *string {
	return &value
}

// Uint32 returns a pointer to the provided uint32 value
func Uint32(value uint32) *uint32 {
	return &value
}

// Uint64IfValid returns a pointer to the value if it's valid, otherwise nil
func Uint64IfValid(valid bool, value uint64) *uint64 {
	if valid {
		return &value
	}
	return nil
}
