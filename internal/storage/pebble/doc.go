// Package pebblestore wraps Pebble with the fsync policy and observation
// hooks shared by Dueue's embedded durability engine.
package pebblestore
