// Package metadata rewrites tagged metadata (.idstv) documents.
//
// Two strategies exist and are selected by configuration:
//
//   - PatternRewriter performs ordered find/replace passes over the raw text
//     and never consults business rules.
//   - TreeRewriter parses the document, checks the profile-type gate and the
//     length threshold, and normalizes identifier leaves of qualifying pieces.
//
// Both report whether they changed anything so callers can skip the write.
package metadata
