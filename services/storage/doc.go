/*
Package storage provides a namespaced key/value interface over BoltDB for the
daemon's persistent state: devices, recipients, alert states and the dispatch log.

Each namespace is a top level bucket. Services normally wrap their namespace in an
IndexedStore, which keeps objects encoded with VersionJSONEncode and maintains
secondary indexes for ordered listing.

All writes made inside one Update call commit atomically and are serialized
against every other writer of the database.
*/
package storage
