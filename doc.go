/*
Package kvidx implements typed, indexed collections on top of an ordered
byte-string key-value store.

We implement:

1. Maps, typed keyspaces holding one encoded record per primary key.

2. Items, a single typed value stored under a namespace.

3. Indexed maps, maps that keep unique and multi secondary indexes in sync
with every write.

4. Prefix scans with exclusive-cursor pagination, over maps and indexes alike.

The store is supplied by the caller (see Store). Bolt, LevelDB and in-memory
backends are included; each runs a callback inside a transaction that commits
when the callback returns nil.

# Technical Details

**Namespaces.**
All collections share one flat keyspace. A namespace is a list of segments,
each encoded as a 2-byte big-endian length followed by the segment bytes. The
collection key follows, unprefixed.

**Composite keys.**
A Tuple is encoded the same way: every component but the last carries a length
prefix, so scans can be bounded by any leading subset of components. Integer
components are fixed-width big-endian (U32Key, U64Key) so byte order equals
numeric order.

**Unique index entries**: index namespace, joined tuple => primary key.

**Multi index entries**: index namespace, length-prefixed tuple components,
primary key => primary key length (4-byte big-endian). The length lets a scan
recover the primary key from any remainder of the entry key. A KeyTransform can
rewrite the stored primary key (for instance to invert its order) as long as it
can be decoded back.

**Values**: msgpack of the record (sorted map keys), or JSON per collection.

**Ordering.**
Byte-wise lexicographic order is the only ordering contract. Exclusive bounds
exclude exactly the given key; keys that merely start with it are compared like
any other.
*/
package kvidx
