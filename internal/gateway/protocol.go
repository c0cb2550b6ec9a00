package gateway

import "encoding/json"

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Close codes.
const (
	// closeAuthFailed is the server's "permanently invalid credentials"
	// close code. The credential is invalidated and the session never
	// retries.
	closeAuthFailed = 4004

	// closeRedial is a private close code used when the server requests an
	// immediate reconnect: the teardown initiator owns the re-dial, so the
	// normal close path must not also schedule one.
	closeRedial = 4900
)

// Dispatch event names.
const (
	eventReady       = "READY"
	eventResumed     = "RESUMED"
	eventGuildCreate = "GUILD_CREATE"
	eventGuildUpdate = "GUILD_UPDATE"
	eventGuildDelete = "GUILD_DELETE"
)

// frame is one gateway message. The payload stays raw until the opcode (and
// for dispatches, the event name) selects a concrete shape.
type frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloPayload struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

type identifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

type identifyPayload struct {
	Token      string             `json:"token"`
	Properties identifyProperties `json:"properties"`
}

type resumePayload struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type guildPayload struct {
	ID            string  `json:"id"`
	VanityURLCode *string `json:"vanity_url_code"`
	Unavailable   bool    `json:"unavailable"`
}

func (g guildPayload) alias() string {
	if g.VanityURLCode == nil {
		return ""
	}
	return *g.VanityURLCode
}

type readyPayload struct {
	SessionID string         `json:"session_id"`
	Guilds    []guildPayload `json:"guilds"`
	User      struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}
