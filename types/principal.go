package types

// Principal is an authenticated account identity supplied by the platform.
type Principal string

// String implements fmt.Stringer.
func (p Principal) String() string { return string(p) }

// IsZero reports whether the principal is empty.
func (p Principal) IsZero() bool { return p == "" }
