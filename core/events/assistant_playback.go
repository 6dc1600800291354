package events

const (
	// KindAssistantResponseText identifies response text sent alongside speech.
	KindAssistantResponseText Kind = "assistant_response.text"
	// KindAssistantSentenceStarted identifies the start of a remote sentence.
	KindAssistantSentenceStarted Kind = "assistant_speech.sentence_started"
	// KindAssistantSentenceQueued identifies a finalized sentence entering playback.
	KindAssistantSentenceQueued Kind = "assistant_speech.sentence_queued"
	// KindAssistantPlaybackSentencePlayed identifies a sentence written to the sink.
	KindAssistantPlaybackSentencePlayed Kind = "assistant_playback.sentence_played"
	// KindAssistantPlaybackCleared identifies queued playback being discarded.
	KindAssistantPlaybackCleared Kind = "assistant_playback.cleared"
)

// AssistantResponseText carries response text reported by the remote.
type AssistantResponseText struct {
	Base
	Text string
}

// NewAssistantResponseText creates an assistant response text event.
func NewAssistantResponseText(text string) AssistantResponseText {
	return AssistantResponseText{Base: NewBase(KindAssistantResponseText), Text: text}
}

// AssistantSentenceStarted marks a remote sentence boundary. Text is empty
// when the remote does not send one.
type AssistantSentenceStarted struct {
	Base
	Text string
}

// NewAssistantSentenceStarted creates an assistant sentence started event.
func NewAssistantSentenceStarted(text string) AssistantSentenceStarted {
	return AssistantSentenceStarted{Base: NewBase(KindAssistantSentenceStarted), Text: text}
}

// AssistantSentenceQueued carries the size of a sentence handed to playback.
type AssistantSentenceQueued struct {
	Base
	Bytes int
}

// NewAssistantSentenceQueued creates an assistant sentence queued event.
func NewAssistantSentenceQueued(size int) AssistantSentenceQueued {
	return AssistantSentenceQueued{Base: NewBase(KindAssistantSentenceQueued), Bytes: size}
}

// AssistantPlaybackSentencePlayed marks a sentence fully written to the sink.
type AssistantPlaybackSentencePlayed struct {
	Base
	Bytes int
}

// NewAssistantPlaybackSentencePlayed creates a sentence played event.
func NewAssistantPlaybackSentencePlayed(size int) AssistantPlaybackSentencePlayed {
	return AssistantPlaybackSentencePlayed{Base: NewBase(KindAssistantPlaybackSentencePlayed), Bytes: size}
}

// AssistantPlaybackCleared marks queued and in-progress speech being dropped.
type AssistantPlaybackCleared struct {
	Base
	Dropped int
}

// NewAssistantPlaybackCleared creates a playback cleared event.
func NewAssistantPlaybackCleared(dropped int) AssistantPlaybackCleared {
	return AssistantPlaybackCleared{Base: NewBase(KindAssistantPlaybackCleared), Dropped: dropped}
}
