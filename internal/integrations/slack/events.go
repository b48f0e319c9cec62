package slack

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/slack-go/slack/slackevents"

	"slack-relay/internal/domain"
)

const (
	channelTypeIM     = "im"
	subtypeBotMessage = "bot_message"
)

// leadingMentions matches one or more <@U123> or <@U123|name> tokens at the
// start of a message.
var leadingMentions = regexp.MustCompile(`^\s*(?:<@[A-Za-z0-9]+(?:\|[^>]*)?>\s*)+`)

// Classifier turns raw Events API payloads into domain events.
type Classifier struct {
	botUserID string
}

// NewClassifier returns a Classifier that ignores messages authored by
// botUserID in addition to anything carrying a bot id.
func NewClassifier(botUserID string) *Classifier {
	return &Classifier{botUserID: strings.TrimSpace(botUserID)}
}

func (c *Classifier) Classify(body []byte) domain.InboundEvent {
	outer, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return ignore("unparseable")
	}

	switch outer.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil || challenge.Challenge == "" {
			return ignore("missing_challenge")
		}
		return domain.InboundEvent{Kind: domain.EventHandshake, Challenge: challenge.Challenge}
	case slackevents.CallbackEvent:
	default:
		return ignore("unsupported_type")
	}

	tenant := strings.TrimSpace(outer.TeamID)
	switch ev := outer.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" {
			return ignore("bot_author")
		}
		return c.turn(tenant, message{
			channel:  ev.Channel,
			user:     ev.User,
			text:     ev.Text,
			ts:       ev.TimeStamp,
			threadTS: ev.ThreadTimeStamp,
		})
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType == subtypeBotMessage {
			return ignore("bot_author")
		}
		if ev.ChannelType != channelTypeIM || ev.SubType != "" {
			return ignore("not_direct_message")
		}
		return c.turn(tenant, message{
			channel:  ev.Channel,
			user:     ev.User,
			text:     ev.Text,
			ts:       ev.TimeStamp,
			threadTS: ev.ThreadTimeStamp,
			direct:   true,
		})
	default:
		return ignore("unsupported_event")
	}
}

type message struct {
	channel  string
	user     string
	text     string
	ts       string
	threadTS string
	direct   bool
}

func (c *Classifier) turn(tenant string, m message) domain.InboundEvent {
	user := strings.TrimSpace(m.user)
	if c.botUserID != "" && user == c.botUserID {
		return ignore("bot_author")
	}
	channel := strings.TrimSpace(m.channel)
	ts := strings.TrimSpace(m.ts)
	if tenant == "" || channel == "" || user == "" || ts == "" {
		return ignore("missing_fields")
	}
	text := StripLeadingMentions(m.text)
	if text == "" {
		return ignore("empty_text")
	}
	root := strings.TrimSpace(m.threadTS)
	if root == "" {
		root = ts
	}
	return domain.InboundEvent{
		Kind:            domain.EventTurn,
		TenantID:        tenant,
		Channel:         channel,
		ThreadRoot:      root,
		TurnTS:          ts,
		AuthorID:        user,
		Text:            text,
		IsDirectMessage: m.direct,
	}
}

// StripLeadingMentions removes mention markup at the start of text and trims
// the remainder.
func StripLeadingMentions(text string) string {
	return strings.TrimSpace(leadingMentions.ReplaceAllString(text, ""))
}

func ignore(reason string) domain.InboundEvent {
	return domain.InboundEvent{Kind: domain.EventIgnore, Reason: reason}
}
