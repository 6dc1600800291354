package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func fixedIDs(ids ...string) func() string {
	next := 0
	return func() string {
		id := ids[next%len(ids)]
		next++
		return id
	}
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("expected valid json, got error: %v", err)
	}
	return out
}

func TestAudioMessageShape(t *testing.T) {
	builder := NewBuilder("user-1").WithIDGenerator(fixedIDs("mid-1"))

	data, err := builder.Audio(7, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	msg := decode(t, data)
	if msg["mid"] != "mid-1" || msg["contentType"] != "AUDIO" || msg["uid"] != "user-1" {
		t.Fatalf("unexpected audio envelope: %v", msg)
	}
	content, ok := msg["content"].(map[string]any)
	if !ok {
		t.Fatalf("expected content object, got %T", msg["content"])
	}
	if content["index"] != float64(7) {
		t.Fatalf("expected index 7, got %v", content["index"])
	}
	if content["audioBase64"] != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Fatalf("unexpected audio payload: %v", content["audioBase64"])
	}
}

func TestControlMessageShapes(t *testing.T) {
	builder := NewBuilder("user-1").WithIDGenerator(fixedIDs("mid-1"))

	testCases := []struct {
		name        string
		build       func() ([]byte, error)
		contentType string
	}{
		{name: "audio start", build: builder.AudioStart, contentType: "CLIENT_AUDIO_START"},
		{name: "interrupt", build: builder.Interrupt, contentType: "CLIENT_INTERRUPT"},
		{name: "ping", build: builder.Ping, contentType: "PING"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			data, err := testCase.build()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			msg := decode(t, data)
			if len(msg) != 3 {
				t.Fatalf("expected exactly mid, contentType and uid, got %v", msg)
			}
			if msg["contentType"] != testCase.contentType || msg["mid"] != "mid-1" || msg["uid"] != "user-1" {
				t.Fatalf("unexpected control message: %v", msg)
			}
		})
	}
}

func TestAudioFinishCarriesOnlyContentType(t *testing.T) {
	data, err := NewBuilder("user-1").AudioFinish()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := string(data); got != `{"contentType":"CLIENT_AUDIO_FINISH"}` {
		t.Fatalf("unexpected finish message: %s", got)
	}
}

func TestMessageIDsAreFreshPerMessage(t *testing.T) {
	builder := NewBuilder("user-1")

	first := decode(t, mustBuild(t, builder.Ping))
	second := decode(t, mustBuild(t, builder.Ping))
	if first["mid"] == second["mid"] {
		t.Fatalf("expected distinct message ids, both were %v", first["mid"])
	}
}

func mustBuild(t *testing.T, build func() ([]byte, error)) []byte {
	t.Helper()
	data, err := build()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return data
}

func TestParseClassifiesMessages(t *testing.T) {
	testCases := []struct {
		name     string
		message  string
		kind     Kind
		text     string
		partial  bool
		evtType  string
		hasAudio bool
	}{
		{name: "sentence start with text", message: `{"contentType":"EVENT","content":{"eventType":"TTS_SENTENCE_START","text":" Hello "}}`, kind: KindSentenceStart, text: "Hello", evtType: EventTTSSentenceStart},
		{name: "sentence start with event data text", message: `{"contentType":"EVENT","content":{"eventType":"TTS_SENTENCE_START","eventData":{"text":"Hi there"}}}`, kind: KindSentenceStart, text: "Hi there", evtType: EventTTSSentenceStart},
		{name: "sentence complete", message: `{"contentType":"EVENT","content":{"eventType":"TTS_SENTENCE_COMPLETE"}}`, kind: KindSentenceComplete, evtType: EventTTSSentenceComplete},
		{name: "tts complete", message: `{"contentType":"EVENT","content":{"eventType":"TTS_COMPLETE"}}`, kind: KindSentenceComplete, evtType: EventTTSComplete},
		{name: "turn complete", message: `{"contentType":"EVENT","content":{"eventType":"COMPLETE"}}`, kind: KindTurnComplete, evtType: EventComplete},
		{name: "interrupt", message: `{"contentType":"EVENT","content":{"eventType":"INTERRUPT"}}`, kind: KindInterrupt, evtType: EventInterrupt},
		{name: "other event", message: `{"contentType":"EVENT","content":{"eventType":"SESSION_READY"}}`, kind: KindEvent, evtType: "SESSION_READY"},
		{name: "body in data", message: `{"contentType":"EVENT","data":{"eventType":"COMPLETE"}}`, kind: KindTurnComplete, evtType: EventComplete},
		{name: "empty content falls back to data", message: `{"contentType":"EVENT","content":{},"data":{"eventType":"INTERRUPT"}}`, kind: KindInterrupt, evtType: EventInterrupt},
		{name: "asr", message: `{"contentType":"ASR","content":{"text":"what time is it"}}`, kind: KindTranscript, text: "what time is it"},
		{name: "asr result field", message: `{"contentType":"RESULT_ASR","content":{"result":"hello"}}`, kind: KindTranscript, text: "hello"},
		{name: "asr partial", message: `{"contentType":"ASR_PARTIAL","content":{"text":"what"}}`, kind: KindTranscript, text: "what", partial: true},
		{name: "llm content", message: `{"contentType":"LLM","content":{"content":"It is noon."}}`, kind: KindResponseText, text: "It is noon."},
		{name: "text field", message: `{"contentType":"TEXT","content":{"text":"Sure."}}`, kind: KindResponseText, text: "Sure."},
		{name: "string body", message: `{"contentType":"RESULT_TEXT","content":"Done."}`, kind: KindResponseText, text: "Done."},
		{name: "audio", message: `{"contentType":"TTS","content":{"audio":"AQID"}}`, kind: KindAudio, hasAudio: true},
		{name: "audio base64", message: `{"contentType":"RESULT_AUDIO","content":{"audioBase64":"AQID"}}`, kind: KindAudio, hasAudio: true},
		{name: "audio chunk", message: `{"contentType":"AUDIO","content":{"chunk":"AQID"}}`, kind: KindAudio, hasAudio: true},
		{name: "audio without payload", message: `{"contentType":"TTS","content":{"other":1}}`, kind: KindAudio},
		{name: "pong", message: `{"contentType":"PONG"}`, kind: KindHeartbeat},
		{name: "unknown", message: `{"contentType":"MYSTERY","content":{"x":1}}`, kind: KindUnknown},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			in, err := Parse([]byte(testCase.message))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if in.Kind != testCase.kind {
				t.Fatalf("expected kind %s, got %s", testCase.kind, in.Kind)
			}
			if in.Text != testCase.text {
				t.Fatalf("expected text %q, got %q", testCase.text, in.Text)
			}
			if in.Partial != testCase.partial {
				t.Fatalf("expected partial %v, got %v", testCase.partial, in.Partial)
			}
			if in.EventType != testCase.evtType {
				t.Fatalf("expected event type %q, got %q", testCase.evtType, in.EventType)
			}
			if testCase.hasAudio && string(in.Audio) != "\x01\x02\x03" {
				t.Fatalf("expected decoded audio, got %v", in.Audio)
			}
			if !testCase.hasAudio && len(in.Audio) != 0 {
				t.Fatalf("expected no audio, got %v", in.Audio)
			}
		})
	}
}

func TestParseRejectsNonJSON(t *testing.T) {
	if _, err := Parse([]byte("hello there")); !errors.Is(err, ErrNotJSON) {
		t.Fatalf("expected ErrNotJSON, got %v", err)
	}
}

func TestParseReportsInvalidAudio(t *testing.T) {
	in, err := Parse([]byte(`{"contentType":"TTS","content":{"audio":"%%%"}}`))
	if !errors.Is(err, ErrInvalidAudio) {
		t.Fatalf("expected ErrInvalidAudio, got %v", err)
	}
	if in.Kind != KindAudio {
		t.Fatalf("expected audio kind to be kept, got %s", in.Kind)
	}
}
