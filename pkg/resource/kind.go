package resource

// Kind identifies one of the server's managed entity types. The set is
// closed: only these kinds participate in event scoping and instance
// creation.
type Kind string

const (
	KindBridge        Kind = "Bridge"
	KindChannel       Kind = "Channel"
	KindPlayback      Kind = "Playback"
	KindLiveRecording Kind = "LiveRecording"
	KindMailbox       Kind = "Mailbox"
	KindDeviceState   Kind = "DeviceState"
	KindEndpoint      Kind = "Endpoint"
	KindSound         Kind = "Sound"
	KindApplication   Kind = "Application"
)

var knownKinds = []Kind{
	KindBridge,
	KindChannel,
	KindPlayback,
	KindLiveRecording,
	KindMailbox,
	KindDeviceState,
	KindEndpoint,
	KindSound,
	KindApplication,
}

// KnownKinds returns the closed set of resource kinds.
func KnownKinds() []Kind {
	out := make([]Kind, len(knownKinds))
	copy(out, knownKinds)
	return out
}

// KindFromType resolves a schema-declared type name to a Kind.
func KindFromType(declared string) (Kind, bool) {
	k := Kind(declared)
	for _, known := range knownKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// IdentityField returns the payload field carrying the kind's
// server-observed identity.
func (k Kind) IdentityField() string {
	switch k {
	case KindBridge, KindChannel, KindPlayback:
		return "id"
	default:
		return "name"
	}
}

var kindNamespaces = map[Kind]string{
	KindBridge:        "bridges",
	KindChannel:       "channels",
	KindPlayback:      "playbacks",
	KindLiveRecording: "recordings",
	KindMailbox:       "mailboxes",
	KindDeviceState:   "deviceStates",
	KindEndpoint:      "endpoints",
	KindSound:         "sounds",
	KindApplication:   "applications",
}

// Namespace returns the resource namespace whose operations target the kind.
func (k Kind) Namespace() string {
	return kindNamespaces[k]
}

var identityParams = map[Kind]string{
	KindBridge:        "bridgeId",
	KindChannel:       "channelId",
	KindPlayback:      "playbackId",
	KindLiveRecording: "recordingName",
	KindMailbox:       "mailboxName",
	KindDeviceState:   "deviceName",
	KindSound:         "soundId",
	KindApplication:   "applicationName",
}

// IdentityParam returns the operation parameter the kind's identity binds
// to. Endpoint identities bind to the tech/resource parameter pair instead.
func (k Kind) IdentityParam() string {
	return identityParams[k]
}

// PromotableField pairs a conventional payload field name with the kind it
// carries, for events absent from the event model.
type PromotableField struct {
	Field string
	Kind  Kind
}

// DefaultPromotableFields lists the payload field names promoted
// best-effort when an event type is not in the model.
var DefaultPromotableFields = []PromotableField{
	{Field: "channel", Kind: KindChannel},
	{Field: "peer", Kind: KindChannel},
	{Field: "bridge", Kind: KindBridge},
	{Field: "playback", Kind: KindPlayback},
	{Field: "recording", Kind: KindLiveRecording},
	{Field: "mailbox", Kind: KindMailbox},
	{Field: "endpoint", Kind: KindEndpoint},
	{Field: "device_state", Kind: KindDeviceState},
}
