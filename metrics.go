package kvidx

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts store traffic. One instance may instrument any number of
// stores and backends.
type Metrics struct {
	ops     *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	scanned prometheus.Counter
}

// NewMetrics registers the counters with reg (prometheus.DefaultRegisterer
// when nil). namespace defaults to "kvidx".
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "kvidx"
	}
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "ops_total",
			Help:      "Store operations segmented by operation and outcome.",
		}, []string{"op", "outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "bytes_total",
			Help:      "Key and value bytes read or written through the store.",
		}, []string{"direction"}),
		scanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "scanned_keys_total",
			Help:      "Keys yielded by range iterators.",
		}),
	}
	reg.MustRegister(m.ops, m.bytes, m.scanned)
	return m
}

func (m *Metrics) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ops.WithLabelValues(op, outcome).Inc()
}

// Instrument wraps s so that every call on it is counted.
func (m *Metrics) Instrument(s Store) Store {
	if m == nil {
		return s
	}
	return &meteredStore{s, m}
}

type meteredStore struct {
	s Store
	m *Metrics
}

func (ms *meteredStore) Get(key []byte) ([]byte, error) {
	v, err := ms.s.Get(key)
	if err == nil && v == nil {
		ms.m.ops.WithLabelValues("get", "miss").Inc()
	} else {
		ms.m.observe("get", err)
	}
	ms.m.bytes.WithLabelValues("read").Add(float64(len(key) + len(v)))
	return v, err
}

func (ms *meteredStore) Set(key, value []byte) error {
	err := ms.s.Set(key, value)
	ms.m.observe("set", err)
	if err == nil {
		ms.m.bytes.WithLabelValues("written").Add(float64(len(key) + len(value)))
	}
	return err
}

func (ms *meteredStore) Remove(key []byte) error {
	err := ms.s.Remove(key)
	ms.m.observe("remove", err)
	return err
}

func (ms *meteredStore) Range(start, end *Bound, order Order) Iterator {
	ms.m.observe("range", nil)
	return &meteredIterator{Iterator: ms.s.Range(start, end, order), m: ms.m}
}

type meteredIterator struct {
	Iterator
	m *Metrics
}

func (it *meteredIterator) Next() bool {
	if !it.Iterator.Next() {
		return false
	}
	it.m.scanned.Inc()
	it.m.bytes.WithLabelValues("read").Add(float64(len(it.Key()) + len(it.Value())))
	return true
}
