// Package iam (Identity and Access Management) is the authentication and
// access-control core of gatekeeper. The root package holds what every
// sub-package shares: the IAM error registry, the built-in roles and the
// names of the supported identity providers.
//
// # Overview
//
// The sub-packages, in dependency order:
//
//   - iam/token       signed session and refresh tokens (HS256)
//   - iam/revocation  ledger of invalidated tokens, kept in the credential store
//   - iam/otp         TOTP enrollment and verification for two-factor sign-in
//   - iam/captcha     arithmetic challenges that unblock throttled callers
//   - iam/ratelimit   per-identity, per-minute request counters
//   - iam/federation  OAuth2 authorization-code clients (Yandex, Mail.ru, VK)
//   - iam/auth        the authorization gate, fiber middleware and audit port
//   - iam/user        users, linked provider accounts and login history
//   - iam/account     registration, sign-in, refresh, logout and admin flows
//
// Transient state (revoked tokens, pending TOTP secrets, rate counters,
// captcha answers and OAuth state) lives in a credstore.Store, which is Redis
// in production and process memory in tests and single-instance setups.
//
// # Request flow
//
//	bearer token → token.Codec (signature, expiry) → revocation.Ledger
//	             → auth.Gate (role check) → protected handler
//
// Rate limiting runs next to the gate, keyed by the caller's user id, and
// escalates to a captcha once the per-minute budget is spent:
//
//	app.Post("/v1/auth/validate-token", mw.Authenticate(), mw.RateLimit(), h.ValidateToken)
//
// # Roles
//
// Three roles are built in with fixed ids, so tokens minted on any node agree:
//
//	root           passes every role check and cannot be granted or revoked
//	administrator  manages users
//	user           the default for new accounts
//
// A role check accepts either a role id or a role name:
//
//	mw.RequireRoles(iam.RoleAdministratorID.String(), iam.RoleAdministratorName)
//
// # Federation
//
// A provider callback either signs in the user already linked to the
// provider identity, or provisions a new user and links it in one step. An
// identity whose login or email is already taken by a local account is
// refused with USER_FEDERATED_LOGIN_CONFLICT. Accounts are never merged.
//
// # Errors
//
// Every sub-package registers its codes on its own errx registry, so a code
// renders as PREFIX_CODE (IAM_TOKEN_REVOKED, USER_INVALID_CREDENTIALS,
// CAPTCHA_NOT_VALID). The fiber error handler maps the error type to the
// HTTP status.
package iam
