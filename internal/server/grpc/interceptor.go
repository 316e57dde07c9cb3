package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/sparkbridge/server/internal/common"
	"github.com/sparkbridge/server/internal/server/models"
)

type ctxKey string

// UserKey holds the verified models.TokenPayload in handler contexts.
const UserKey ctxKey = "user"

// publicPrefixes are method prefixes reachable without an access token.
var publicPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

func isPublic(method string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(method, p) {
			return true
		}
	}
	return false
}

// UserFromContext returns the caller set by the access token interceptor.
func UserFromContext(ctx context.Context) (models.TokenPayload, bool) {
	p, ok := ctx.Value(UserKey).(models.TokenPayload)
	return p, ok
}

func (s *Server) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if isPublic(info.FullMethod) {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
			accessToken = common.BearerToken(values[0])
		}
	}
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	user, err := s.auth.VerifyAccess(ctx, accessToken)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	return handler(context.WithValue(ctx, UserKey, user), req)
}
