// Package search finds and highlights query text in decrypted transcripts.
//
// Matching is a case-insensitive substring test over message text and file
// names. The query is taken literally; it is never a pattern. Highlighting
// escapes everything it emits, matched or not.
package search
