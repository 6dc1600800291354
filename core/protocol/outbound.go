// Package protocol holds the wire vocabulary of the duplex voice channel:
// outbound control and audio messages and parsing of inbound envelopes.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentTypeAudio             ContentType = "AUDIO"
	ContentTypeClientAudioStart  ContentType = "CLIENT_AUDIO_START"
	ContentTypeClientAudioFinish ContentType = "CLIENT_AUDIO_FINISH"
	ContentTypeClientInterrupt   ContentType = "CLIENT_INTERRUPT"
	ContentTypePing              ContentType = "PING"
	ContentTypePong              ContentType = "PONG"
	ContentTypeEvent             ContentType = "EVENT"

	ContentTypeASR        ContentType = "ASR"
	ContentTypeResultASR  ContentType = "RESULT_ASR"
	ContentTypeASRPartial ContentType = "ASR_PARTIAL"

	ContentTypeLLM        ContentType = "LLM"
	ContentTypeAgent      ContentType = "AGENT"
	ContentTypeResultText ContentType = "RESULT_TEXT"
	ContentTypeText       ContentType = "TEXT"

	ContentTypeTTS         ContentType = "TTS"
	ContentTypeResultAudio ContentType = "RESULT_AUDIO"
)

type envelope struct {
	MID         string      `json:"mid"`
	ContentType ContentType `json:"contentType"`
	Content     any         `json:"content,omitempty"`
	UID         string      `json:"uid"`
}

type audioContent struct {
	AudioBase64 string `json:"audioBase64"`
	Index       int64  `json:"index"`
}

// Builder creates outbound messages for one user. Every message that
// carries a message id gets a fresh one.
type Builder struct {
	uid   string
	newID func() string
}

func NewBuilder(uid string) *Builder {
	return &Builder{uid: uid, newID: uuid.NewString}
}

// WithIDGenerator replaces the message id source, mostly for tests.
func (b *Builder) WithIDGenerator(newID func() string) *Builder {
	b.newID = newID
	return b
}

func (b *Builder) UID() string {
	return b.uid
}

// Audio encodes one frame of captured audio under the given per-utterance
// index.
func (b *Builder) Audio(index int64, pcm []byte) ([]byte, error) {
	return b.marshal(envelope{
		MID:         b.newID(),
		ContentType: ContentTypeAudio,
		Content: audioContent{
			AudioBase64: base64.StdEncoding.EncodeToString(pcm),
			Index:       index,
		},
		UID: b.uid,
	})
}

func (b *Builder) AudioStart() ([]byte, error) {
	return b.control(ContentTypeClientAudioStart)
}

// AudioFinish carries only the content type.
func (b *Builder) AudioFinish() ([]byte, error) {
	return b.marshal(struct {
		ContentType ContentType `json:"contentType"`
	}{ContentType: ContentTypeClientAudioFinish})
}

func (b *Builder) Interrupt() ([]byte, error) {
	return b.control(ContentTypeClientInterrupt)
}

func (b *Builder) Ping() ([]byte, error) {
	return b.control(ContentTypePing)
}

func (b *Builder) control(contentType ContentType) ([]byte, error) {
	return b.marshal(envelope{MID: b.newID(), ContentType: contentType, UID: b.uid})
}

func (b *Builder) marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}
