// Package httpserver exposes publish, receive and acknowledge over a small
// JSON HTTP API, plus health and metrics endpoints.
package httpserver
