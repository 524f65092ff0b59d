// Package validation turns untrusted strings and uploads into sanitized values
// or rejection reasons. The Sanitize* and Validate* functions are pure and
// safe for concurrent use; Guard adds audit reporting on top of them.
package validation
