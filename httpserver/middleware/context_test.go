/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigschom/ss-portal/log"
)

func TestGetLoggerFromContext(t *testing.T) {
	t.Run("empty logger", func(t *testing.T) {
		require.Nil(t, GetLoggerFromContext(context.Background()))
	})

	t.Run("non empty logger", func(t *testing.T) {
		logger := log.NewDisabledLogger()
		ctx := NewContextWithLogger(context.Background(), logger)
		require.Equal(t, logger, GetLoggerFromContext(ctx))
	})
}

func TestGetRequestIDFromContext(t *testing.T) {
	require.Equal(t, "", GetRequestIDFromContext(context.Background()))

	ctx := NewContextWithRequestID(context.Background(), "external-request-id")
	require.Equal(t, "external-request-id", GetRequestIDFromContext(ctx))

	ctx = NewContextWithInternalRequestID(ctx, "internal-request-id")
	require.Equal(t, "internal-request-id", GetInternalRequestIDFromContext(ctx))
	require.Equal(t, "external-request-id", GetRequestIDFromContext(ctx))
}

func TestGetRequestStartTimeFromContext(t *testing.T) {
	require.True(t, GetRequestStartTimeFromContext(context.Background()).IsZero())

	now := time.Now()
	ctx := NewContextWithRequestStartTime(context.Background(), now)
	require.Equal(t, now, GetRequestStartTimeFromContext(ctx))
}

func TestGetLoggingParamsFromContext(t *testing.T) {
	require.Nil(t, GetLoggingParamsFromContext(context.Background()))

	lp := &LoggingParams{}
	ctx := NewContextWithLoggingParams(context.Background(), lp)
	require.Same(t, lp, GetLoggingParamsFromContext(ctx))
}
