package codec

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseRFC3339(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDecode_RecognizedVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Notification
	}{
		{
			name: "login with clientId, ts in seconds",
			body: `{"event":"login","uid":"U1","clientId":"C1","ts":1700000000}`,
			want: LoginNotification{UID: "U1", ClientID: "C1", ChangeTimeMS: 1700000000000},
		},
		{
			name: "login without clientId",
			body: `{"event":"login","uid":"U1","ts":1700000000}`,
			want: LoginNotification{UID: "U1", ClientID: "", ChangeTimeMS: 1700000000000},
		},
		{
			name: "login with timestamp already in ms",
			body: `{"event":"login","uid":"U1","clientId":"C1","timestamp":1700000000000}`,
			want: LoginNotification{UID: "U1", ClientID: "C1", ChangeTimeMS: 1700000000000},
		},
		{
			name: "delete",
			body: `{"event":"delete","uid":"U1","ts":1700000000}`,
			want: DeleteNotification{Event: "delete", UID: "U1", ChangeTimeMS: 1700000000000},
		},
		{
			name: "primaryEmailChanged decodes to ProfileChangeNotification",
			body: `{"event":"primaryEmailChanged","uid":"U1","ts":1700000000}`,
			want: ProfileChangeNotification{Event: "primaryEmailChanged", UID: "U1", ChangeTimeMS: 1700000000000},
		},
		{
			name: "profileDataChange decodes to ProfileChangeNotification",
			body: `{"event":"profileDataChange","uid":"U1","timestamp":1700000000000}`,
			want: ProfileChangeNotification{Event: "profileDataChange", UID: "U1", ChangeTimeMS: 1700000000000},
		},
		{
			name: "passwordChange decodes to PasswordChangeNotification",
			body: `{"event":"passwordChange","uid":"U1","ts":1700000000}`,
			want: PasswordChangeNotification{Event: "passwordChange", UID: "U1", ChangeTimeMS: 1700000000000},
		},
		{
			name: "reset decodes to PasswordChangeNotification",
			body: `{"event":"reset","uid":"U1","ts":1700000000}`,
			want: PasswordChangeNotification{Event: "reset", UID: "U1", ChangeTimeMS: 1700000000000},
		},
		{
			name: "subscription:update",
			body: `{"event":"subscription:update","uid":"U1","eventCreatedAt":1700000000,"isActive":true,"productCapabilities":["capB","capD"]}`,
			want: SubscriptionUpdateNotification{
				Event:               "subscription:update",
				UID:                 "U1",
				ChangeTimeMS:        1700000000000,
				IsActive:            true,
				ProductCapabilities: []string{"capB", "capD"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Unwanted(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown event", body: `{"event":"helloWorld","uid":"U1"}`},
		{name: "malformed json", body: `{not json`},
		{name: "missing uid", body: `{"event":"login","ts":1700000000}`},
		{name: "subscription missing productCapabilities", body: `{"event":"subscription:update","uid":"U1","eventCreatedAt":1700000000,"isActive":true}`},
		{name: "subscription missing isActive", body: `{"event":"subscription:update","uid":"U1","eventCreatedAt":1700000000,"productCapabilities":["capA"]}`},
		{name: "delete missing timestamp", body: `{"event":"delete","uid":"U1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnwanted))
		})
	}
}

// TestDecode_LoginWithGeneratedFixtures_RoundTrips exercises the login
// decoder against varied uid/clientId shapes instead of one fixed pair,
// the way tools/event-seeder generates synthetic event fixtures.
func TestDecode_LoginWithGeneratedFixtures_RoundTrips(t *testing.T) {
	gofakeit.Seed(0)

	for i := 0; i < 20; i++ {
		uid := gofakeit.UUID()
		clientID := gofakeit.Username()
		ts := gofakeit.DateRange(mustParseRFC3339("2020-01-01T00:00:00Z"), mustParseRFC3339("2026-01-01T00:00:00Z")).Unix()

		body := fmt.Sprintf(`{"event":"login","uid":%q,"clientId":%q,"ts":%d}`, uid, clientID, ts)

		got, err := Decode([]byte(body))
		require.NoError(t, err)

		login, ok := got.(LoginNotification)
		require.True(t, ok)
		assert.Equal(t, uid, login.UID)
		assert.Equal(t, clientID, login.ClientID)
		assert.Equal(t, ts*1000, login.ChangeTimeMS)
	}
}

func TestDecode_SubscriptionEmptyProductCapabilitiesIsRecognized(t *testing.T) {
	// An explicit empty array is a valid (if useless) subscription event,
	// distinct from the field being absent entirely.
	got, err := Decode([]byte(`{"event":"subscription:update","uid":"U1","eventCreatedAt":1700000000,"isActive":false,"productCapabilities":[]}`))
	require.NoError(t, err)
	assert.Equal(t, KindSubscriptionUpdate, got.Kind())
}
