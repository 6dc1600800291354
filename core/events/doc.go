// Package events defines the typed duplex session event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_speech.*
//   - assistant_playback.*
//   - turn_state.*
//
// user_input events
//
//   - UserSpeechStarted (user_input.speech_started): local voice activity
//     opened an utterance and audio started streaming.
//   - UserSpeechEnded (user_input.speech_ended): the utterance was finished,
//     by trailing silence or by the remote pre-empting it.
//   - UserTranscript (user_input.transcript): recognized local speech as
//     reported by the remote, partial or final.
//
// assistant_response events
//
//   - AssistantResponseText (assistant_response.text): response text sent by
//     the remote alongside its speech.
//
// assistant_speech events
//
//   - AssistantSentenceStarted (assistant_speech.sentence_started): the remote
//     opened a new sentence, with its text when provided.
//   - AssistantSentenceQueued (assistant_speech.sentence_queued): a finalized
//     sentence entered the playback queue.
//
// assistant_playback events
//
//   - AssistantPlaybackSentencePlayed (assistant_playback.sentence_played): a
//     sentence was fully written to the sink.
//   - AssistantPlaybackCleared (assistant_playback.cleared): queued speech was
//     dropped because the remote yielded its turn.
//
// turn_state events
//
//   - TurnStateChanged (turn_state.changed): the half-duplex turn moved between
//     states.
//   - TurnInterruptRequested (turn_state.interrupt_requested): local speech
//     over the remote produced an interrupt request.
//   - TurnInterruptAcknowledged (turn_state.interrupt_acknowledged): the remote
//     confirmed the interrupt.
//   - TurnResponseLatency (turn_state.response_latency): time from the end of
//     the local utterance to the first remote sentence.
package events
