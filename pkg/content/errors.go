package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// These errors give every backend a common way to report failure conditions.
// The request handler checks them with errors.Is and maps them to response
// statuses; anything else is treated as a server-side failure.
//
// Usage Pattern:
//
//	info, err := store.Stat(ctx, key)
//	if err != nil {
//	    if errors.Is(err, content.ErrContentNotFound) {
//	        // 404 Page Not Found
//	    }
//	    // 500 Internal Server Error
//	}
//
// Error Wrapping:
// Implementations wrap these errors with the key that failed:
//
//	return fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)

var (
	// ErrContentNotFound indicates the requested key does not name a regular
	// file (or object) under the store root.
	//
	// This error is returned when:
	//   - The key does not exist
	//   - The key names a directory
	//   - The key escapes the store root
	ErrContentNotFound = errors.New("content not found")

	// ErrStoreClosed indicates an operation on a store after Close.
	ErrStoreClosed = errors.New("content store closed")
)

// IsNotFound reports whether err is, or wraps, ErrContentNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContentNotFound)
}
