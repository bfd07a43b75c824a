package pool

// Ref is an offset into a Pool's backing file. The zero Ref is the null
// reference: no persistent object starts at offset 0, since offset 0
// always falls inside the pool header.
type Ref uint64

// IsNil reports whether r is the null reference.
func (r Ref) IsNil() bool {
	return r == 0
}
