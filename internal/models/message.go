package models

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// Events carried on the participant channel.
const (
	EventEncryptedBroadcast = "encrypted_broadcast"
	EventStreamChunk        = "stream_chunk"
	EventConnected          = "connected"
)

// Envelope is the output of one AEAD encryption. All three fields are
// needed to decrypt.
type Envelope struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// WireEnvelope is the JSON form of an Envelope: hex nonce and tag, base64
// ciphertext. Content is a pointer so an absent field can be told apart
// from an empty file.
type WireEnvelope struct {
	IV      string  `json:"iv"`
	AuthTag string  `json:"authTag"`
	Content *string `json:"content"`
}

func (e *Envelope) ToWire() WireEnvelope {
	content := base64.StdEncoding.EncodeToString(e.Ciphertext)
	return WireEnvelope{
		IV:      hex.EncodeToString(e.Nonce),
		AuthTag: hex.EncodeToString(e.Tag),
		Content: &content,
	}
}

// BroadcastMessage is pushed to participants after an upload.
type BroadcastMessage struct {
	Filename string `json:"filename"`
	Filetype string `json:"filetype"`
	IV       string `json:"iv"`
	AuthTag  string `json:"authTag"`
	Content  string `json:"content"`
}

func NewBroadcastMessage(filename, filetype string, env *Envelope) *BroadcastMessage {
	w := env.ToWire()
	return &BroadcastMessage{
		Filename: filename,
		Filetype: filetype,
		IV:       w.IV,
		AuthTag:  w.AuthTag,
		Content:  *w.Content,
	}
}

// StreamChunk documents the shape participants use for stream_chunk data.
// The relay never decodes it; chunks travel as raw JSON.
type StreamChunk struct {
	IV         string          `json:"iv"`
	Ciphertext string          `json:"ciphertext"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	TS         json.RawMessage `json:"ts,omitempty"`
}

// Frame is one text message on the participant channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var errInvalidFrameData = errors.New("frame data is not valid JSON")

// EncodeFrame wraps already-encoded data without touching its bytes;
// json.Marshal would re-compact and re-escape it.
func EncodeFrame(event string, data json.RawMessage) ([]byte, error) {
	if !json.Valid(data) {
		return nil, errInvalidFrameData
	}
	name, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(data)+len(name)+20)
	buf = append(buf, `{"event":`...)
	buf = append(buf, name...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	return buf, nil
}
