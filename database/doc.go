// Package database owns the storage side of a unit of work: configuration
// loading, the StorageContext that holds one live connection, query hooks,
// resource descriptors, schema creation, SQL seeding and SQL error
// classification. Everything here is built on Bun.
package database
