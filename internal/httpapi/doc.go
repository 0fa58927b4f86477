// Package httpapi exposes the identity engine over JSON/HTTP for identityd.
//
// Routes mirror the public product API:
//
//	POST   /v1/auth/register
//	POST   /v1/auth/login
//	POST   /v1/user/exists
//	GET    /v1/user/@me
//	POST   /v1/user/complete-onboarding
//	POST   /v1/user/setup-tfa
//	POST   /v1/user/enable-tfa
//	POST   /v1/user/disable-tfa
//	POST   /v1/user/logout
//	GET    /v1/user/devices
//	DELETE /v1/user/devices/{id}
//	GET    /healthz
//	GET    /metrics
//
// Failures are rendered as {"error": CODE} with a status derived from the
// error category.
package httpapi
