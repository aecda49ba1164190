// Package workflows provides high-level orchestration for cipherroom commands.
//
// A Session ties the pieces together for one user: the relay, the local
// group cache, the keyring, the encryption engine, the reconciliation engine
// and the audit trail. Each method handles one command's business logic,
// independent of CLI concerns like flag parsing, spinners, and output
// formatting.
//
// # Data Flow
//
// Sending a message:
//
//	text -> seal -> optimistic record -> persist -> promote -> publish
//
// Receiving:
//
//	push or history batch -> decrypt -> reconcile -> transcript
//
// # Available Workflows
//
//   - CreateGroup, JoinGroup, ListGroups, Fingerprint
//   - LoadHistory, Send, Watch, Search
//   - Upload, Download, DeleteFile, ListFiles
//
// # Error Handling
//
// Workflows return typed errors from the internal/errors package, allowing
// the CLI layer to provide appropriate user-facing messages without string
// matching:
//
//	_, err := session.LoadHistory(ctx, groupID)
//	if errors.Is(err, kerrors.ErrLoadInFlight) {
//	    // Another load is already merging this group
//	}
//
// Transport errors are returned untouched; records that fail to decrypt are
// logged and dropped, never returned.
//
// # Context Usage
//
// Every workflow that talks to the relay accepts a context.Context as its
// first parameter.
package workflows
