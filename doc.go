// Package strata ties a unit of work together. A Factory owns one
// database.StorageContext and the services built on it, moving through
// Uninitialized, Initializing, Ready and Disposed. Handle is the service
// boundary that turns errors into types.Response envelopes, and
// Middleware gives each HTTP request its own Factory.
package strata
