// Package query provides Builder, an immutable query composer over one
// resource descriptor. Chain steps only accumulate predicates, sort terms,
// relation includes and a window; a terminal compiles them into a single
// bun select and runs it.
package query
