package bus

// EventKind discriminates inbound platform events.
type EventKind string

const (
	EventCommand    EventKind = "command"
	EventComponent  EventKind = "component"
	EventModal      EventKind = "modal"
	EventMessage    EventKind = "message"
	EventAttachment EventKind = "attachment"
	EventMemberJoin EventKind = "member_join"
)

// InboundEvent is one platform interaction normalized for the gateway.
type InboundEvent struct {
	Channel       string            `json:"channel"`
	Kind          EventKind         `json:"kind"`
	UserID        string            `json:"user_id"`
	UserName      string            `json:"user_name"`
	AvatarURL     string            `json:"avatar_url,omitempty"`
	ChatID        string            `json:"chat_id"`
	Command       string            `json:"command,omitempty"`
	Options       map[string]string `json:"options,omitempty"`
	CustomID      string            `json:"custom_id,omitempty"`
	Values        []string          `json:"values,omitempty"`
	Content       string            `json:"content,omitempty"`
	AttachmentURL string            `json:"attachment_url,omitempty"`
	InteractionID string            `json:"interaction_id,omitempty"`
	Admin         bool              `json:"admin,omitempty"`
}

// Embed is a platform-neutral rich message body.
type Embed struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Color       int      `json:"color,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Fields      []Field  `json:"fields,omitempty"`
	Footer      string   `json:"footer,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Component is one interactive control attached to an outbound message.
type Component struct {
	Kind     ComponentKind `json:"kind"`
	CustomID string        `json:"custom_id"`
	Label    string        `json:"label,omitempty"`
	Style    int           `json:"style,omitempty"`
	Options  []Option      `json:"options,omitempty"`
	Row      int           `json:"row,omitempty"`
	Disabled bool          `json:"disabled,omitempty"`
}

type ComponentKind string

const (
	ComponentButton ComponentKind = "button"
	ComponentSelect ComponentKind = "select"
)

type Option struct {
	Label   string `json:"label"`
	Value   string `json:"value"`
	Default bool   `json:"default,omitempty"`
}

// ModalField is one text input of a modal prompt.
type ModalField struct {
	CustomID    string `json:"custom_id"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	Paragraph   bool   `json:"paragraph,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// OutboundMessage is what the gateway wants shown on a channel: either an
// embed with optional components, a modal prompt, a raw file upload, or a
// role grant side effect.
type OutboundMessage struct {
	Channel       string       `json:"channel"`
	ChatID        string       `json:"chat_id"`
	UserID        string       `json:"user_id,omitempty"`
	InteractionID string       `json:"interaction_id,omitempty"`
	Content       string       `json:"content,omitempty"`
	Embed         *Embed       `json:"embed,omitempty"`
	Components    []Component  `json:"components,omitempty"`
	ModalTitle    string       `json:"modal_title,omitempty"`
	ModalID       string       `json:"modal_id,omitempty"`
	ModalFields   []ModalField `json:"modal_fields,omitempty"`
	FileName      string       `json:"file_name,omitempty"`
	FileData      []byte       `json:"-"`
	GrantRoleID   string       `json:"grant_role_id,omitempty"`
	PurgeDM       int          `json:"purge_dm,omitempty"`
	Ephemeral     bool         `json:"ephemeral,omitempty"`
	Update        bool         `json:"update,omitempty"`
}
