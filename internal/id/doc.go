// Package id generates identifiers for connections and requests.
//
// Connection IDs are UUIDv7 so they sort by accept time in logs; request IDs
// are random UUIDv4.
package id
