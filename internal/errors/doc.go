// Package errors provides typed error values for cipherroom.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching.
//
// # Error Categories
//
//   - Key errors: no secret to derive a key from (ErrMissingSecret)
//   - Crypto errors: AEAD and envelope failures (ErrAuthentication, ErrInvalidEnvelope)
//   - Transport errors: relay calls that failed (ErrTransport)
//   - Session errors: state conflicts (ErrLoadInFlight)
//
// Crypto errors are recovered locally: the offending record is dropped and
// logged, and processing continues. Transport errors propagate to the caller,
// which decides whether to retry.
//
// # Usage
//
//	key, err := keyring.Key(ctx, groupID)
//	if errors.Is(err, kerrors.ErrMissingSecret) {
//	    // Ask the user to re-join the group
//	}
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("fetching history for %s: %w: %v", groupID, errors.ErrTransport, err)
package errors
