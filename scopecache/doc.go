// Package scopecache caches resolved permission sets per principal.
//
// Entries carry their own expiry and Cache checks it on every read, so a
// store that keeps items longer than asked never serves stale scopes.
package scopecache
