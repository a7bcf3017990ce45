/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package log_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/log/logtest"
)

func TestMaskingLogger(t *testing.T) {
	rec := logtest.NewRecorder()
	logger := log.NewMaskingLogger(rec, log.NewMasker(log.DefaultMasks))

	backendErr := fmt.Errorf("fetch users: %w", errors.New(`Get "https://portal.example.com/rest/v1/users?apikey=s3cr3t"`))
	logger.With(log.String("auth", "Authorization: Bearer t0ken\r\n")).Warn(
		"backend request to /rest/v1/users?apikey=s3cr3t failed",
		log.Error(backendErr),
		log.String("body", `{"requester_phone":"0788123456"}`),
		log.Strings("urls", []string{"/rest/v1/users?apikey=s3cr3t", "/healthz"}),
		log.Int("attempt", 3),
	)

	entry, found := rec.FindEntry("backend request to /rest/v1/users?apikey=*** failed")
	require.True(t, found)

	errField, found := entry.FindField("error")
	require.True(t, found)
	require.Equal(t, `fetch users: Get "https://portal.example.com/rest/v1/users?apikey=***`, errField.Any.(error).Error())

	body, found := entry.FindField("body")
	require.True(t, found)
	require.Equal(t, `{"requester_phone": "***456"}`, string(body.Bytes))

	urls, found := entry.FindField("urls")
	require.True(t, found)
	require.EqualValues(t, []string{"/rest/v1/users?apikey=***", "/healthz"}, urls.Any)

	attempt, found := entry.FindField("attempt")
	require.True(t, found)
	require.Equal(t, int64(3), attempt.Int)

	auth, found := entry.FindField("auth")
	require.True(t, found)
	require.Equal(t, "Authorization: ***\r\n", string(auth.Bytes))

	logger.Infof("retrying %s", "/rest/v1/users?apikey=s3cr3t")
	_, found = rec.FindEntry("retrying /rest/v1/users?apikey=***")
	require.True(t, found)

	logger.WithLevel(log.LevelError).Info("dropped")
	_, found = rec.FindEntry("dropped")
	require.False(t, found)
}
