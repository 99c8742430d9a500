package jsonrpc

// Version is the protocol tag carried by every message.
const Version = "2.0"

// Message is one line on the wire. A request carries ID and Method, a
// response carries ID and exactly one of Result/Error, a notification
// carries Method and no ID.
type Message struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method,omitempty"`
	Params  any    `json:"params,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

func (m Message) IsRequest() bool {
	return m.ID != "" && m.Method != ""
}

func (m Message) IsNotification() bool {
	return m.ID == "" && m.Method != ""
}

func (m Message) IsResponse() bool {
	return m.ID != "" && m.Method == "" && (m.Result != nil || m.Error != nil)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC codes plus the server-defined range used by maestro.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeToolNotFound   = -32001
	CodeNotInitialized = -32002
)
