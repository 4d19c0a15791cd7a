// Package types defines the shared value types and standard errors for the
// Burrow test data-store lifecycle manager: worker slots, schema
// fingerprints, reset outcomes, validation results, retry policies, and the
// harness configuration.
package types
