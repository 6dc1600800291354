package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	EventTTSSentenceStart    = "TTS_SENTENCE_START"
	EventTTSSentenceComplete = "TTS_SENTENCE_COMPLETE"
	EventTTSComplete         = "TTS_COMPLETE"
	EventComplete            = "COMPLETE"
	EventInterrupt           = "INTERRUPT"
)

var (
	ErrNotJSON      = errors.New("message is not a json object")
	ErrInvalidAudio = errors.New("message audio is not valid base64")
)

// Kind is the session-level meaning of an inbound text message.
type Kind int

const (
	KindUnknown Kind = iota
	KindSentenceStart
	KindSentenceComplete
	KindTurnComplete
	KindInterrupt
	KindEvent
	KindTranscript
	KindResponseText
	KindAudio
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindSentenceStart:
		return "sentence_start"
	case KindSentenceComplete:
		return "sentence_complete"
	case KindTurnComplete:
		return "turn_complete"
	case KindInterrupt:
		return "interrupt"
	case KindEvent:
		return "event"
	case KindTranscript:
		return "transcript"
	case KindResponseText:
		return "response_text"
	case KindAudio:
		return "audio"
	case KindHeartbeat:
		return "heartbeat"
	}
	return "unknown"
}

// Inbound is a parsed text message from the remote.
type Inbound struct {
	Kind        Kind
	ContentType ContentType
	EventType   string
	// Text is the sentence, transcript or response text, trimmed.
	Text string
	// Partial is set for interim transcripts.
	Partial bool
	// Audio is the decoded speech carried by JSON audio messages.
	Audio []byte
	// Body is the raw message body, "content" or else "data".
	Body json.RawMessage
}

type inboundEnvelope struct {
	MID         string          `json:"mid"`
	ContentType ContentType     `json:"contentType"`
	Content     json.RawMessage `json:"content"`
	Data        json.RawMessage `json:"data"`
}

type inboundBody struct {
	EventType string `json:"eventType"`
	Text      string `json:"text"`
	Result    string `json:"result"`
	EventData struct {
		Text string `json:"text"`
	} `json:"eventData"`
	Content     json.RawMessage `json:"content"`
	Audio       string          `json:"audio"`
	AudioBase64 string          `json:"audioBase64"`
	Chunk       string          `json:"chunk"`
}

// Parse decodes an inbound text message. Unknown content types and event
// types are returned with KindUnknown and KindEvent respectively rather than
// as errors.
func Parse(message []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrNotJSON, err)
	}

	in := Inbound{ContentType: env.ContentType, Body: selectBody(env.Content, env.Data)}

	var body inboundBody
	if isObject(in.Body) {
		// Body fields are best effort: a field of an unexpected type leaves
		// the rest of the body readable through Body.
		_ = json.Unmarshal(in.Body, &body)
	}

	switch env.ContentType {
	case ContentTypeEvent:
		in.EventType = body.EventType
		switch body.EventType {
		case EventTTSSentenceStart:
			in.Kind = KindSentenceStart
			in.Text = firstNonEmpty(body.Text, body.EventData.Text)
		case EventTTSSentenceComplete, EventTTSComplete:
			in.Kind = KindSentenceComplete
		case EventComplete:
			in.Kind = KindTurnComplete
		case EventInterrupt:
			in.Kind = KindInterrupt
		default:
			in.Kind = KindEvent
		}

	case ContentTypeASR, ContentTypeResultASR, ContentTypeASRPartial:
		in.Kind = KindTranscript
		in.Partial = env.ContentType == ContentTypeASRPartial
		in.Text = firstNonEmpty(body.Text, body.Result)

	case ContentTypeLLM, ContentTypeAgent, ContentTypeResultText, ContentTypeText:
		in.Kind = KindResponseText
		in.Text = firstNonEmpty(stringValue(body.Content), body.Text, stringValue(in.Body))

	case ContentTypeTTS, ContentTypeResultAudio, ContentTypeAudio:
		in.Kind = KindAudio
		encoded := firstNonEmpty(body.Audio, body.AudioBase64, body.Chunk)
		if encoded == "" {
			return in, nil
		}
		audio, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return in, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
		}
		in.Audio = audio

	case ContentTypePing, ContentTypePong:
		in.Kind = KindHeartbeat

	default:
		in.Kind = KindUnknown
	}

	return in, nil
}

func selectBody(content, data json.RawMessage) json.RawMessage {
	if !isEmpty(content) {
		return content
	}
	if !isEmpty(data) {
		return data
	}
	return nil
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", "{}", `""`, "[]", "false", "0":
		return true
	}
	return false
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func stringValue(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
