// Package referral keeps referred→referrer edges and walks referral chains.
//
// Two strategies share the Graph interface. SingleSided stores one map from
// referred to referrer. Indexed stores full Refer records and a multi index by
// referrer, which adds AllReferredOf.
package referral

import (
	"errors"
	"fmt"

	"github.com/andreyvit/kvidx"
)

const (
	DefaultDepth         = 3
	DefaultReferredLimit = 50
	DefaultAllLimit      = 100
)

var (
	ErrSelfReference     = errors.New("referrer can not be the same address as referred")
	ErrDuplicateReferral = errors.New("address already has a referrer")
	ErrEmptyAddress      = errors.New("empty address")
)

type Address string

func (a Address) key() []byte { return []byte(a) }

// Refer is one edge: Referred was brought in by Referrer.
type Refer struct {
	Referrer Address `msgpack:"referrer" json:"referrer"`
	Referred Address `msgpack:"referred" json:"referred"`
}

type Graph interface {
	// SetRef records referrer as the parent of referred. Edges are permanent.
	SetRef(s kvidx.Store, referred, referrer Address) error
	RefOf(s kvidx.Store, addr Address) (Address, bool, error)
	HasRef(s kvidx.Store, addr Address) (bool, error)
	// RefChains returns up to depth ancestors of addr, nearest first.
	RefChains(s kvidx.Store, addr Address, depth int) ([]Address, error)
	// AllRef lists edges by referred address.
	AllRef(s kvidx.Store, startAfter Address, limit int, order kvidx.Order) ([]Refer, error)
}

var (
	_ Graph = (*SingleSided)(nil)
	_ Graph = (*Indexed)(nil)
)

func validateEdge(referred, referrer Address) error {
	if referred == "" || referrer == "" {
		return ErrEmptyAddress
	}
	if referred == referrer {
		return fmt.Errorf("%s: %w", referred, ErrSelfReference)
	}
	return nil
}

func page(startAfter Address, limit int, order kvidx.Order) kvidx.Page {
	return kvidx.Page{StartAfter: startAfter.key(), Limit: limit, Order: order}
}

// chain walks parent pointers. The depth cap is the only guard against cycles
// longer than a self-edge.
func chain(addr Address, depth int, refOf func(Address) (Address, bool, error)) ([]Address, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	var result []Address
	cur := addr
	for range depth {
		parent, ok, err := refOf(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		result = append(result, parent)
		cur = parent
	}
	return result, nil
}
