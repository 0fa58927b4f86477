// Package flows contains the orchestrators behind every Engine operation
// that spans more than one collaborator.
//
// Each flow function (RunRegister, RunLogin, RunVerifyPin, RunConfirmTFASetup,
// etc.) accepts a typed dependency struct and returns results without
// side-effects beyond those dependencies. Sentinel errors, metric IDs and
// audit event names are injected through the Errors, Metrics and Events
// sub-structs so the package never imports the root identity package.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the user store, session store, setup
// cache, limiters, hasher, audit dispatcher and metrics. They do NOT own any
// of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root identity package (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
