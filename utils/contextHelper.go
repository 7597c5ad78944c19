package utils

import (
	"context"

	"github.com/mmdatafocus/unified_backend/appctx"
)

type contextKey = appctx.ContextKey

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyConnectionId  = appctx.ContextKeyConnectionId
	ContextKeyPlatform      = appctx.ContextKeyPlatform
	ContextKeyHideDemoData  = appctx.ContextKeyHideDemoData
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetConnectionIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyConnectionId)
}

func GetPlatformFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyPlatform)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetConnectionIdInContext(ctx context.Context, connectionId string) context.Context {
	return appctx.Set(ctx, ContextKeyConnectionId, connectionId)
}

func SetPlatformInContext(ctx context.Context, platform string) context.Context {
	return appctx.Set(ctx, ContextKeyPlatform, platform)
}

func SetHideDemoDataInContext(ctx context.Context, hide bool) context.Context {
	return appctx.Set(ctx, ContextKeyHideDemoData, hide)
}
