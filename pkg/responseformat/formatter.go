package responseformat

import (
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WriteResponse writes the response in the appropriate format based on the query parameter
// JSON is the default format. MessagePack is used when format=msgpack is specified
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, data any, headers map[string]string) error {
	return f.WriteResponseStatus(w, req, http.StatusOK, data, headers)
}

// WriteResponseStatus is WriteResponse with an explicit status code
func (f *Formatter) WriteResponseStatus(w http.ResponseWriter, req *http.Request, status int, data any, headers map[string]string) error {
	// Set any provided headers first
	for k, v := range headers {
		w.Header().Set(k, v)
	}

	// Always set CORS header
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Check if MessagePack is requested via format=msgpack query parameter
	if Wants(req) == MsgPack {
		w.Header().Set("Content-Type", "application/x-msgpack")
		w.WriteHeader(status)
		return f.writeMsgPack(w, data)
	}

	// Default to JSON format (when no format parameter or any other value)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func (f *Formatter) writeMsgPack(w http.ResponseWriter, data any) error {
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}

// Format names a response encoding
type Format string

const (
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// Wants returns the encoding requested by the format query parameter
func Wants(req *http.Request) Format {
	if req.URL.Query().Get("format") == string(MsgPack) {
		return MsgPack
	}
	return JSON
}
