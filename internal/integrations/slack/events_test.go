package slack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"slack-relay/internal/domain"
)

func callback(team, event string) []byte {
	return []byte(`{"token":"t","team_id":"` + team + `","api_app_id":"A1","type":"event_callback","event_id":"Ev1","event_time":1700000000,"event":` + event + `}`)
}

func TestClassify_Handshake(t *testing.T) {
	ev := NewClassifier("").Classify([]byte(`{"token":"t","challenge":"abc123","type":"url_verification"}`))
	require.Equal(t, domain.EventHandshake, ev.Kind)
	require.Equal(t, "abc123", ev.Challenge)
}

func TestClassify_MentionStartsThread(t *testing.T) {
	ev := NewClassifier("UBOT").Classify(callback("W1",
		`{"type":"app_mention","user":"U1","text":"<@UBOT> what is 2+2?","ts":"1700000000.000100","channel":"C1","event_ts":"1700000000.000100"}`))

	require.Equal(t, domain.EventTurn, ev.Kind)
	require.Equal(t, "W1", ev.TenantID)
	require.Equal(t, "C1", ev.Channel)
	require.Equal(t, "1700000000.000100", ev.ThreadRoot)
	require.Equal(t, "1700000000.000100", ev.TurnTS)
	require.Equal(t, "U1", ev.AuthorID)
	require.Equal(t, "what is 2+2?", ev.Text)
	require.False(t, ev.IsDirectMessage)
	require.Equal(t, "1700000000.000100", ev.ReplyThread())
}

func TestClassify_MentionInsideThread(t *testing.T) {
	ev := NewClassifier("").Classify(callback("W1",
		`{"type":"app_mention","user":"U1","text":"<@UBOT> and then?","ts":"1700000050.000200","thread_ts":"1700000000.000100","channel":"C1"}`))

	require.Equal(t, domain.EventTurn, ev.Kind)
	require.Equal(t, "1700000000.000100", ev.ThreadRoot)
	require.Equal(t, "1700000050.000200", ev.TurnTS)
}

func TestClassify_DirectMessage(t *testing.T) {
	ev := NewClassifier("UBOT").Classify(callback("W1",
		`{"type":"message","channel_type":"im","user":"U1","text":"hello there","ts":"1700000000.000300","channel":"D1"}`))

	require.Equal(t, domain.EventTurn, ev.Kind)
	require.True(t, ev.IsDirectMessage)
	require.Equal(t, "D1", ev.Channel)
	require.Equal(t, "hello there", ev.Text)
	require.Equal(t, "", ev.ReplyThread())
}

func TestClassify_Ignores(t *testing.T) {
	cases := []struct {
		name   string
		body   []byte
		reason string
	}{
		{
			name:   "bot id on mention",
			body:   callback("W1", `{"type":"app_mention","user":"U1","bot_id":"B1","text":"<@UBOT> hi","ts":"1.1","channel":"C1"}`),
			reason: "bot_author",
		},
		{
			name:   "bot id on dm",
			body:   callback("W1", `{"type":"message","channel_type":"im","user":"U1","bot_id":"B1","text":"hi","ts":"1.1","channel":"D1"}`),
			reason: "bot_author",
		},
		{
			name:   "bot message subtype",
			body:   callback("W1", `{"type":"message","subtype":"bot_message","channel_type":"im","text":"hi","ts":"1.1","channel":"D1"}`),
			reason: "bot_author",
		},
		{
			name:   "configured bot user",
			body:   callback("W1", `{"type":"message","channel_type":"im","user":"UBOT","text":"echo","ts":"1.1","channel":"D1"}`),
			reason: "bot_author",
		},
		{
			name:   "channel message without mention",
			body:   callback("W1", `{"type":"message","channel_type":"channel","user":"U1","text":"hi","ts":"1.1","channel":"C1"}`),
			reason: "not_direct_message",
		},
		{
			name:   "dm with subtype",
			body:   callback("W1", `{"type":"message","subtype":"message_changed","channel_type":"im","user":"U1","text":"hi","ts":"1.1","channel":"D1"}`),
			reason: "not_direct_message",
		},
		{
			name:   "mention only",
			body:   callback("W1", `{"type":"app_mention","user":"U1","text":"<@UBOT>  <@U2|sam> ","ts":"1.1","channel":"C1"}`),
			reason: "empty_text",
		},
		{
			name:   "missing team",
			body:   callback("", `{"type":"app_mention","user":"U1","text":"<@UBOT> hi","ts":"1.1","channel":"C1"}`),
			reason: "missing_fields",
		},
		{
			name:   "missing user",
			body:   callback("W1", `{"type":"app_mention","text":"<@UBOT> hi","ts":"1.1","channel":"C1"}`),
			reason: "missing_fields",
		},
		{
			name:   "missing ts",
			body:   callback("W1", `{"type":"app_mention","user":"U1","text":"<@UBOT> hi","channel":"C1"}`),
			reason: "missing_fields",
		},
		{
			name:   "unrelated event",
			body:   callback("W1", `{"type":"reaction_added","user":"U1","reaction":"thumbsup"}`),
			reason: "unsupported_event",
		},
		{
			name:   "not json",
			body:   []byte(`not-json`),
			reason: "unparseable",
		},
		{
			name:   "handshake without challenge",
			body:   []byte(`{"type":"url_verification"}`),
			reason: "missing_challenge",
		},
	}
	c := NewClassifier("UBOT")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := c.Classify(tc.body)
			require.Equal(t, domain.EventIgnore, ev.Kind)
			if tc.reason != "unsupported_event" {
				require.Equal(t, tc.reason, ev.Reason)
			}
		})
	}
}

func TestStripLeadingMentions(t *testing.T) {
	cases := map[string]string{
		"<@U123> hi":               "hi",
		"<@U123|bot> hi":           "hi",
		"<@U1> <@U2>   hi there  ": "hi there",
		"  <@U1>hi":                "hi",
		"hi <@U1>":                 "hi <@U1>",
		"plain":                    "plain",
		"<@U1>":                    "",
	}
	for in, want := range cases {
		require.Equal(t, want, StripLeadingMentions(in), "input %q", in)
	}
}
