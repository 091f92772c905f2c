// Package auth holds the shared pieces of the Auth0 bearer strategy: the error
// taxonomy, the Identity and IdentityBinder contracts implemented by the host
// application, and Ability, the capability checker handed to request code.
//
// Verification, permission resolution, and the request pipeline live in
// provider/auth0. Permission caching lives in scopecache.
//
// Capability checks:
//   - Ability.Can(action, resource) looks up "{action}:{resource}" where the
//     resource name is snake_cased and pluralized, so Can("destroy", Invoice{})
//     checks "destroy:invoices".
//   - Strings are accepted as resource names and may carry namespaces with "::"
//     or ".", which become "/".
//
// Errors:
//   - Every failure is a go-errors value with a text code (TOKEN_INVALID,
//     PERMISSION_FETCH, ...). Sentinels are cloned per occurrence through
//     WrapError; compare with HasTextCode rather than identity.
package auth
