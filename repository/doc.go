// Package repository provides the per-resource façade business services
// call for data access: pagination over the query builder, projection
// variants, single lookups and audited writes with soft delete.
package repository
