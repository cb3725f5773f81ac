// Package events defines the typed event contract between a call's transport
// and its conversation engine.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - call_input.*
//   - assistant_response.*
//   - turn_state.*
//
// Semantics used across the package:
//
//   - Segment: append-only text piece emitted in stream order.
//   - Final: terminal marker for the current response.
//
// call_input events
//
//   - Setup (call_input.setup): a call started; carries the call id and the
//     caller identity (phone number).
//   - Prompt (call_input.prompt): a transcribed caller utterance.
//   - Interrupt (call_input.interrupt): the caller spoke over the assistant;
//     carries the part of the assistant's response heard before that.
//
// assistant_response events
//
//   - PartialText (assistant_response.segment): streamed response text
//     segment.
//   - EndOfTurn (assistant_response.final): response text is complete and was
//     recorded in the conversation.
//
// turn_state events
//
//   - TurnFailed (turn_state.failed): current turn failed; carries a message
//     that is safe to forward to the caller's transport.
//   - TurnCancelled (turn_state.cancelled): current turn was superseded or
//     interrupted before it completed.
package events
