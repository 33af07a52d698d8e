package kvidx

// Page describes one page of a listing: resume after StartAfter (nil or
// empty means from the beginning), take at most Limit entries.
type Page struct {
	StartAfter []byte
	Limit      int
	Order      Order
}

// Bounds places the exclusive cursor on the side the scan starts from.
func (p Page) Bounds() (start, end *Bound) {
	if len(p.StartAfter) == 0 {
		return nil, nil
	}
	if p.Order == Descending {
		return nil, Exclusive(p.StartAfter)
	}
	return Exclusive(p.StartAfter), nil
}

// Take returns Limit, or def when Limit is not positive.
func (p Page) Take(def int) int {
	if p.Limit <= 0 {
		return def
	}
	return p.Limit
}
