// Package registration provides a pluggable user-registration and
// account-management add-on: signup with e-mail confirmation, password
// recovery/reset, account editing, and an authentication bridge for the
// session layer, all backed by a transactional record store.
//
// Record lifecycle:
//   - A signup creates a PendingRegistration keyed by e-mail, carrying an
//     opaque confirmation token. Confirming with the right token atomically
//     removes the pending record, mints an identifier, and creates an
//     indexed Registration whose login defaults to the e-mail address.
//   - ConfirmedRegistrations owns the secondary indexes (by_email, by_login)
//     and guarantees they never diverge from the primary by_id mapping.
//     Stale index entries are removed in the same transaction that installs
//     the new ones.
//
// Storage:
//   - Store is a capability interface over a transactional key/value
//     container. Implementations are selected at composition time: memstore
//     for an embedded zero-infrastructure store, bunstore for SQL engines
//     via Bun. All multi-key updates commit atomically or not at all.
//
// Collaborators such as mail delivery and session issuance are injected;
// the command handlers (command_*.go) wire Registrar operations to a Mailer
// and an optional auto-login capability the way a controller would consume
// them.
package registration
