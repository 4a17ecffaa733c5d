// Package stores provides the SQLite persistence layer of the controller.
// It holds section-scoped parameters (operator settings and the last
// parameters of every plugin job) and the history of controller runs.
package stores
