/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, GetRequestTypeFromContext(ctx))
	require.False(t, GetIdempotentHintFromContext(ctx))

	ctx = NewContextWithIdempotentHint(NewContextWithRequestType(ctx, "get_service_request"), true)
	require.Equal(t, "get_service_request", GetRequestTypeFromContext(ctx))
	require.True(t, GetIdempotentHintFromContext(ctx))

	ctx = NewContextWithIdempotentHint(ctx, false)
	require.False(t, GetIdempotentHintFromContext(ctx))
	require.Equal(t, "get_service_request", GetRequestTypeFromContext(ctx))
}
