// Package interfaces defines the shared domain types and contracts of the
// identity vault: the Identity and Document entities, the IdentityStore
// persistence contract, and the sentinel errors the rest of the system maps
// to its error taxonomy.
//
// Keeping these in one leaf package lets the core (auth, accessctl), the
// storage backends, and the HTTP boundary depend on common definitions
// without depending on each other.
//
// # Error taxonomy
//
//   - ErrIdentityNotFound: no identity exists for the given ID
//   - ErrIdentityExists: Create collided with an existing ID
//   - ErrStaleIdentity: a compare-and-swap lost against a concurrent update
//   - ErrStoreUnavailable: the backend could not be reached
//   - ErrInvalidStoreURI: a store location URI is malformed or unsupported
package interfaces
