package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsMerge(t *testing.T) {
	defaults := DefaultPayload()
	defaults.Actions = []Action{{Action: ActionOpen, Title: "Open"}}

	tests := []struct {
		name   string
		opts   Options
		verify func(t *testing.T, p Payload)
	}{
		{
			name: "empty options keep defaults",
			opts: Options{},
			verify: func(t *testing.T, p Payload) {
				assert.Equal(t, DefaultIcon, p.Icon)
				assert.Equal(t, DefaultBadge, p.Badge)
				assert.Equal(t, DefaultTag, p.Tag)
				assert.False(t, p.RequireInteraction)
				assert.Equal(t, defaults.Actions, p.Actions)
			},
		},
		{
			name: "caller overrides defaults",
			opts: Options{
				Body:               Ptr("hello"),
				Tag:                Ptr("chat-7"),
				RequireInteraction: Ptr(true),
				Icon:               Ptr("/x.png"),
			},
			verify: func(t *testing.T, p Payload) {
				assert.Equal(t, "hello", p.Body)
				assert.Equal(t, "chat-7", p.Tag)
				assert.True(t, p.RequireInteraction)
				assert.Equal(t, "/x.png", p.Icon)
				assert.Equal(t, DefaultBadge, p.Badge)
			},
		},
		{
			name: "explicit false overrides true default",
			opts: Options{RequireInteraction: Ptr(false)},
			verify: func(t *testing.T, p Payload) {
				assert.False(t, p.RequireInteraction)
			},
		},
		{
			name: "empty actions clear defaults",
			opts: Options{Actions: []Action{}},
			verify: func(t *testing.T, p Payload) {
				assert.Empty(t, p.Actions)
			},
		},
		{
			name: "data replaced wholesale",
			opts: Options{Data: &Data{URL: "/room/3", RoomID: ParseRoomID("3")}},
			verify: func(t *testing.T, p Payload) {
				assert.Equal(t, "/room/3", p.Data.URL)
				assert.Equal(t, "3", p.Data.RoomID.String())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.opts.Merge("Title", defaults)
			assert.Equal(t, "Title", p.Title)
			tt.verify(t, p)
		})
	}
}

func TestOptionsMerge_DoesNotAliasDefaults(t *testing.T) {
	defaults := Payload{Actions: []Action{{Action: "a", Title: "A"}}}
	p := Options{}.Merge("t", defaults)
	p.Actions[0].Title = "changed"
	assert.Equal(t, "A", defaults.Actions[0].Title)
}

func TestPayloadHasAction(t *testing.T) {
	p := Payload{Actions: PushActions}
	assert.True(t, p.HasAction(ActionOpen))
	assert.True(t, p.HasAction(ActionClose))
	assert.False(t, p.HasAction(ActionReply))
}

func TestRoomIDJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		encoded string
	}{
		{name: "number", input: `42`, want: "42", encoded: `42`},
		{name: "string", input: `"lobby"`, want: "lobby", encoded: `"lobby"`},
		{name: "numeric string stays string", input: `"42"`, want: "42", encoded: `"42"`},
		{name: "null", input: `null`, want: "", encoded: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r RoomID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &r))
			assert.Equal(t, tt.want, r.String())

			out, err := json.Marshal(r)
			require.NoError(t, err)
			assert.JSONEq(t, tt.encoded, string(out))
		})
	}

	var r RoomID
	assert.Error(t, json.Unmarshal([]byte(`true`), &r))
}

func TestParseRoomID(t *testing.T) {
	out, err := json.Marshal(ParseRoomID("42"))
	require.NoError(t, err)
	assert.Equal(t, "42", string(out))

	out, err = json.Marshal(ParseRoomID("abc"))
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(out))

	assert.True(t, ParseRoomID("").IsZero())
}

func TestParsePermissionState(t *testing.T) {
	tests := []struct {
		input   string
		want    PermissionState
		wantErr bool
	}{
		{"", PermissionDefault, false},
		{"default", PermissionDefault, false},
		{"granted", PermissionGranted, false},
		{"denied", PermissionDenied, false},
		{"maybe", PermissionDefault, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePermissionState(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
	assert.True(t, PermissionGranted.Granted())
	assert.False(t, PermissionDenied.Granted())
}
