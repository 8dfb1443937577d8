// Package serverrun wires configuration, logging, metrics, the durability
// engine and the HTTP server into a running Dueue process.
package serverrun
