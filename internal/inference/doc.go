// Package inference defines the contract with the external analysis engine and
// its HTTP implementation. Every response is treated as an untrusted payload:
// structured output is schema-validated before use and validation mismatches
// fail the enclosing call instead of being coerced. The retry wrapper applies
// the uniform transient-failure policy (advertised rate-limit interval plus a
// safety margin, capped exponential backoff for server errors, bounded attempts).
package inference
