// Package httpapi maps authcore.Engine operations onto a JSON HTTP API
// routed with gorilla/mux.
//
//	POST /v1/auth/login       {"identifier","password"}    -> token pair
//	POST /v1/auth/refresh     {"refresh_token"}            -> token pair
//	POST /v1/auth/logout      {"refresh_token"}            -> 204
//	POST /v1/auth/logout-all  bearer access token          -> {"revoked"}
//	GET  /v1/auth/validate    bearer access token          -> claims
//	GET  /healthz                                          -> {"status"}
//
// Engine error kinds map to 401, 423 (with Retry-After), 401, 503 and 500.
package httpapi
