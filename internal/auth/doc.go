// Package auth implements the single-operator authentication model.
//
// There are no user accounts. One Argon2id password hash lives in the
// service configuration; a successful login against it yields a
// short-lived HS256 JWT, and every protected API route validates that
// token by signature alone. Revocation is out of scope: tokens are
// short-lived and the service runs on a trusted home network.
package auth
