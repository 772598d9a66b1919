// Package login exchanges a username and password for a signed token.
//
// LoginNormal issues a token whose authorities are the user's roles.
// LoginOrder issues a capability token carrying only the "order" permission.
// Unknown users and wrong passwords both return ErrInvalidCredentials and take
// the same bcrypt time.
package login
