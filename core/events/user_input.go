package events

import "time"

const (
	// KindUserSpeechStarted identifies the start of a local utterance.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserSpeechEnded identifies the end of a local utterance.
	KindUserSpeechEnded Kind = "user_input.speech_ended"
	// KindUserTranscript identifies remote recognition of local speech.
	KindUserTranscript Kind = "user_input.transcript"
)

// UserSpeechStarted marks when a local utterance starts being streamed.
type UserSpeechStarted struct {
	Base
	Energy float64
}

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted(energy float64, at time.Time) UserSpeechStarted {
	return UserSpeechStarted{Base: NewBaseAt(KindUserSpeechStarted, at), Energy: energy}
}

// UserSpeechEnded marks when a local utterance is finished, either by
// trailing silence or because the remote started speaking over it.
type UserSpeechEnded struct {
	Base
	Frames    uint32
	Preempted bool
}

// NewUserSpeechEnded creates a user speech ended event.
func NewUserSpeechEnded(frames uint32, preempted bool, at time.Time) UserSpeechEnded {
	return UserSpeechEnded{Base: NewBaseAt(KindUserSpeechEnded, at), Frames: frames, Preempted: preempted}
}

// UserTranscript carries recognized text of local speech reported by the
// remote.
type UserTranscript struct {
	Base
	Transcript string
	Partial    bool
}

// NewUserTranscript creates a user transcript event.
func NewUserTranscript(transcript string, partial bool) UserTranscript {
	return UserTranscript{Base: NewBase(KindUserTranscript), Transcript: transcript, Partial: partial}
}
