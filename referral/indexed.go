package referral

import (
	"fmt"

	"github.com/andreyvit/kvidx"
)

// Indexed stores Refer records by referred address plus a multi index by
// referrer for listing everyone an address has referred.
type Indexed struct {
	refs       *kvidx.IndexedMap[Refer]
	byReferrer *kvidx.MultiIndex[Refer]
}

func NewIndexed(ns, indexNs kvidx.Namespace) *Indexed {
	byReferrer := kvidx.NewMultiIndex[Refer](indexNs, func(pk []byte, r *Refer) kvidx.Tuple {
		return kvidx.Tup(r.Referrer.key())
	})
	return &Indexed{
		refs:       kvidx.NewIndexedMap[Refer](ns, byReferrer),
		byReferrer: byReferrer,
	}
}

// Collection exposes the underlying indexed map for diagnostics.
func (g *Indexed) Collection() *kvidx.IndexedMap[Refer] {
	return g.refs
}

func (g *Indexed) SetRef(s kvidx.Store, referred, referrer Address) error {
	if err := validateEdge(referred, referrer); err != nil {
		return err
	}
	_, err := g.refs.Update(s, referred.key(), func(old *Refer) (*Refer, error) {
		if old != nil {
			return nil, fmt.Errorf("%s: %w", referred, ErrDuplicateReferral)
		}
		return &Refer{Referrer: referrer, Referred: referred}, nil
	})
	return err
}

func (g *Indexed) RefOf(s kvidx.Store, addr Address) (Address, bool, error) {
	r, err := g.refs.MayLoad(s, addr.key())
	if err != nil || r == nil {
		return "", false, err
	}
	return r.Referrer, true, nil
}

func (g *Indexed) HasRef(s kvidx.Store, addr Address) (bool, error) {
	_, ok, err := g.RefOf(s, addr)
	return ok, err
}

func (g *Indexed) RefChains(s kvidx.Store, addr Address, depth int) ([]Address, error) {
	return chain(addr, depth, func(a Address) (Address, bool, error) {
		return g.RefOf(s, a)
	})
}

func (g *Indexed) AllRef(s kvidx.Store, startAfter Address, limit int, order kvidx.Order) ([]Refer, error) {
	p := page(startAfter, limit, order)
	start, end := p.Bounds()
	recs, err := g.refs.Range(s, start, end, order).CollectRecords(p.Take(DefaultAllLimit))
	if err != nil {
		return nil, err
	}
	out := make([]Refer, len(recs))
	for i, r := range recs {
		out[i] = *r
	}
	return out, nil
}

// AllReferredOf lists the addresses referred by referrer. Only index keys are
// read; the records themselves are not loaded.
func (g *Indexed) AllReferredOf(s kvidx.Store, referrer Address, startAfter Address, limit int, order kvidx.Order) ([]Address, error) {
	keys, err := g.byReferrer.Prefix(referrer.key()).Keys(s, page(startAfter, limit, order), DefaultReferredLimit)
	if err != nil {
		return nil, err
	}
	out := make([]Address, len(keys))
	for i, k := range keys {
		out[i] = Address(k)
	}
	return out, nil
}
