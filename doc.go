// Package auth implements the hipp user and role administration backend:
// JWT issuance and validation, a role gated fiber route table, and Bun
// repositories for users, roles and memberships.
//
// Tokens:
//   - TokenServiceImpl signs HMAC tokens carrying the user id, username,
//     email and the full role set as a JSON array. Validation accepts only
//     the configured algorithm, applies zero leeway and reports each
//     rejection with its own text code. Previous keys can be configured by
//     key id so tokens survive a secret rotation.
//   - Roles in a token are a snapshot taken at login. Membership changes
//     take effect on the next login.
//
// Routes:
//   - Controller.Routes returns a plain table. Each entry names the roles it
//     admits; RegisterRoutes places the RouteAuthenticator gate in front of
//     every non public route. A missing or invalid token is a 401, a valid
//     token without a required role is a 403.
//
// Commands:
//   - Every mutation runs in a single Bun transaction. Uniqueness pre checks
//     run inside the transaction and driver UNIQUE violations are mapped to
//     the same errors, so concurrent writers see one success.
//
// Activity sinks:
//   - ActivitySink receives login, user, password and role events. Sinks run
//     best effort; errors are logged and never fail the request.
package auth
