package referral

import (
	"fmt"

	"github.com/andreyvit/kvidx"
)

// SingleSided maps each referred address to its referrer.
type SingleSided struct {
	refs *kvidx.Map[Address]
}

func NewSingleSided(ns kvidx.Namespace) *SingleSided {
	return &SingleSided{refs: kvidx.NewMap[Address](ns)}
}

func (g *SingleSided) SetRef(s kvidx.Store, referred, referrer Address) error {
	if err := validateEdge(referred, referrer); err != nil {
		return err
	}
	_, err := g.refs.Update(s, referred.key(), func(old *Address) (*Address, error) {
		if old != nil {
			return nil, fmt.Errorf("%s: %w", referred, ErrDuplicateReferral)
		}
		return &referrer, nil
	})
	return err
}

func (g *SingleSided) RefOf(s kvidx.Store, addr Address) (Address, bool, error) {
	v, err := g.refs.MayLoad(s, addr.key())
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (g *SingleSided) HasRef(s kvidx.Store, addr Address) (bool, error) {
	_, ok, err := g.RefOf(s, addr)
	return ok, err
}

func (g *SingleSided) RefChains(s kvidx.Store, addr Address, depth int) ([]Address, error) {
	return chain(addr, depth, func(a Address) (Address, bool, error) {
		return g.RefOf(s, a)
	})
}

func (g *SingleSided) AllRef(s kvidx.Store, startAfter Address, limit int, order kvidx.Order) ([]Refer, error) {
	p := page(startAfter, limit, order)
	start, end := p.Bounds()
	entries, err := g.refs.Range(s, start, end, order).Collect(p.Take(DefaultAllLimit))
	if err != nil {
		return nil, err
	}
	out := make([]Refer, len(entries))
	for i, e := range entries {
		out[i] = Refer{Referrer: *e.Record, Referred: Address(e.Key)}
	}
	return out, nil
}
