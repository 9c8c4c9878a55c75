package http

import (
	"context"
	"errors"
)

type userIDKey struct{}

var errNoUser = errors.New("user_id is not provided")

func withUserID(ctx context.Context, userID int32) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated caller set by the auth middleware.
func UserIDFromContext(ctx context.Context) (int32, error) {
	id, ok := ctx.Value(userIDKey{}).(int32)
	if !ok || id <= 0 {
		return 0, errNoUser
	}
	return id, nil
}
