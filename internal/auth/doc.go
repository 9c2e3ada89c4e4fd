// Package auth provides token authentication for the surfaces that talk to
// the typepilot core: the overlay, the CLI and any remote control panel.
//
// There are no user accounts. Each surface is identified by name and holds
// a role:
//   - observer sees session state, reviews and notices
//   - controller also triggers actions, drives sessions and resolves reviews
//   - admin also reads the learning log and session history of every target
//
// Tokens are HS256 JWTs signed with the shared secret from config, so a
// local CLI can mint its own token without a login round trip. Permissions
// are a static role mapping with no database lookup.
package auth
