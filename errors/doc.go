// Package errors defines the failure taxonomy shared by every layer:
// configuration, storage context lifecycle, caller arguments and storage
// round-trips. Each typed error matches its sentinel through errors.Is.
package errors
