package domain

// Address is a base58-encoded 32-byte account address.
// The empty string is the zero address and is never a valid participant.
type Address string

// Zero reports whether the address is unset.
func (a Address) Zero() bool {
	return a == ""
}

// String returns the base58 text form.
func (a Address) String() string {
	return string(a)
}
