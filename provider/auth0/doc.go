// Package auth0 authenticates Auth0-issued bearer tokens.
//
// TokenVerifier checks signature, issuer, audience, and expiry against the
// tenant key set (HTTPKeyResolver or RefreshingKeyResolver). Strategy runs
// the full request pipeline: verify, bind the principal to a local identity,
// then resolve its permissions through the management API behind a
// scopecache.Cache.
//
// Permission failures fail closed: the caller stays authenticated with an
// empty auth.Ability and Result.AuthorizationErr explains why.
package auth0
