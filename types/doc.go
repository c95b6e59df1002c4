// Package types holds the value types shared across layers: page requests
// and paged results, the service response envelope, audit columns, JSON
// column helpers and the enum contract.
package types
