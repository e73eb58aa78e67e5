// Package auth issues and verifies the bearer tokens of the ops API.
//
// Tokens are HS256 JWTs minted by the operator CLI ("plantcare token").
// There are no user accounts: the subject names the caller and the role
// selects a fixed permission set (viewer, operator, admin).
package auth
