package common

// AuthorizationHeaderName carries "Bearer <access token>" on HTTP requests and
// as gRPC metadata.
const AuthorizationHeaderName = "authorization"

// BearerPrefix is the scheme prefix expected in AuthorizationHeaderName.
const BearerPrefix = "Bearer "

// TokenQueryParam lets websocket clients pass the access token in the URL,
// since browsers cannot set headers on the upgrade request.
const TokenQueryParam = "token"
