package directline

import (
	"encoding/json"
	"time"
)

// Activity types defined by the Bot Framework v3 schema. The set is open;
// anything else is passed through untouched.
const (
	ActivityTypeMessage            = "message"
	ActivityTypeTyping             = "typing"
	ActivityTypeEvent              = "event"
	ActivityTypeEndOfConversation  = "endOfConversation"
	ActivityTypeConversationUpdate = "conversationUpdate"
)

// Timestamp is an instant as sent on the wire. The received bytes are kept so
// re-encoding reproduces the service's exact representation (Direct Line uses
// seven fractional digits). A value that does not parse leaves Time zero and
// is still carried through.
type Timestamp struct {
	Time time.Time

	raw  json.RawMessage
	orig time.Time
}

// NewTimestamp wraps t for outbound activities.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

// Valid reports whether the wire value parsed as an instant.
func (t *Timestamp) Valid() bool {
	return t != nil && !t.Time.IsZero()
}

// MarshalJSON emits the received bytes when Time has not been modified.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if len(t.raw) > 0 && t.Time.Equal(t.orig) {
		return t.raw, nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// UnmarshalJSON parses an ISO-8601 instant.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.raw = append(json.RawMessage(nil), data...)
	t.Time, t.orig = time.Time{}, time.Time{}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time, t.orig = parsed, parsed
	}
	return nil
}

// ChannelAccount identifies a participant.
type ChannelAccount struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	AadObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`

	Extra Extra `json:"-"`
}

type channelAccountAlias ChannelAccount

func (a ChannelAccount) MarshalJSON() ([]byte, error) {
	alias := channelAccountAlias(a)
	return encodeWithExtra(&alias, a.Extra)
}

func (a *ChannelAccount) UnmarshalJSON(data []byte) error {
	var alias channelAccountAlias
	extra, err := decodeWithExtra(data, &alias)
	if err != nil {
		return err
	}
	*a = ChannelAccount(alias)
	a.Extra = extra
	return nil
}

// ConversationAccount describes the conversation an activity belongs to.
type ConversationAccount struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	IsGroup          *bool  `json:"isGroup,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	AadObjectID      string `json:"aadObjectId,omitempty"`
	Role             string `json:"role,omitempty"`

	Extra Extra `json:"-"`
}

type conversationAccountAlias ConversationAccount

func (c ConversationAccount) MarshalJSON() ([]byte, error) {
	alias := conversationAccountAlias(c)
	return encodeWithExtra(&alias, c.Extra)
}

func (c *ConversationAccount) UnmarshalJSON(data []byte) error {
	var alias conversationAccountAlias
	extra, err := decodeWithExtra(data, &alias)
	if err != nil {
		return err
	}
	*c = ConversationAccount(alias)
	c.Extra = extra
	return nil
}

// Activity is one conversation event. Received activities are treated as
// immutable. Attachments, entities, channel data and value are carried as raw
// JSON; any member the struct does not model lands in Extra.
type Activity struct {
	Type             string               `json:"type,omitempty"`
	ID               string               `json:"id,omitempty"`
	Timestamp        *Timestamp           `json:"timestamp,omitempty"`
	LocalTimestamp   *Timestamp           `json:"localTimestamp,omitempty"`
	LocalTimezone    string               `json:"localTimezone,omitempty"`
	ServiceURL       string               `json:"serviceUrl,omitempty"`
	ChannelID        string               `json:"channelId,omitempty"`
	From             *ChannelAccount      `json:"from,omitempty"`
	Conversation     *ConversationAccount `json:"conversation,omitempty"`
	Recipient        *ChannelAccount      `json:"recipient,omitempty"`
	TextFormat       string               `json:"textFormat,omitempty"`
	AttachmentLayout string               `json:"attachmentLayout,omitempty"`
	Locale           string               `json:"locale,omitempty"`
	Text             string               `json:"text,omitempty"`
	Speak            string               `json:"speak,omitempty"`
	InputHint        string               `json:"inputHint,omitempty"`
	Summary          string               `json:"summary,omitempty"`
	Attachments      []json.RawMessage    `json:"attachments,omitempty"`
	Entities         []json.RawMessage    `json:"entities,omitempty"`
	ChannelData      json.RawMessage      `json:"channelData,omitempty"`
	ReplyToID        string               `json:"replyToId,omitempty"`
	Name             string               `json:"name,omitempty"`
	Label            string               `json:"label,omitempty"`
	ValueType        string               `json:"valueType,omitempty"`
	Value            json.RawMessage      `json:"value,omitempty"`
	Code             string               `json:"code,omitempty"`

	Extra Extra `json:"-"`
}

type activityAlias Activity

func (a Activity) MarshalJSON() ([]byte, error) {
	alias := activityAlias(a)
	return encodeWithExtra(&alias, a.Extra)
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	var alias activityAlias
	extra, err := decodeWithExtra(data, &alias)
	if err != nil {
		return err
	}
	*a = Activity(alias)
	a.Extra = extra
	return nil
}

// Describe returns a short human description used in logs and listen output.
func (a Activity) Describe() string {
	switch {
	case a.Text != "":
		return a.Text
	case a.Name != "":
		return "<event:" + a.Name + ">"
	case len(a.Attachments) > 0:
		return "<attachments>"
	case a.Type != "":
		return "<" + a.Type + ">"
	default:
		return "<activity>"
	}
}

// ActivitySet is one page of activities. Watermark is an opaque cursor and is
// only ever compared for equality.
type ActivitySet struct {
	Activities []Activity `json:"activities"`
	Watermark  string     `json:"watermark,omitempty"`
}

// Conversation is returned when starting or reconnecting a conversation and
// when generating a token.
type Conversation struct {
	ConversationID     string `json:"conversationId,omitempty"`
	Token              string `json:"token,omitempty"`
	ExpiresIn          int    `json:"expires_in,omitempty"`
	StreamURL          string `json:"streamUrl,omitempty"`
	ReferenceGrammarID string `json:"referenceGrammarId,omitempty"`
	ETag               string `json:"eTag,omitempty"`
}

// ResourceResponse carries the id assigned to a posted activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// TokenParameters is the optional body of a token generate request.
type TokenParameters struct {
	User *ChannelAccount `json:"user,omitempty"`
}

// errorResponse is the Direct Line error envelope.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
