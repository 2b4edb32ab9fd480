// Package event defines log entries and the three game lifecycle events
// recognised by the chess index.
//
// A log Entry is opaque to the rest of the system until it passes through a
// Classifier. The classifier unifies the entry content with the CUE
// definitions embedded from events.cue and produces an Event for the three
// recognised content types:
//
//	chess_invite         author invites content.inviting, playing content.myColor
//	chess_invite_accept  accepts the invite whose entry id is content.root
//	chess_game_end       ends game content.root with content.status
//
// Anything else is dropped. Classification is filtering, not validation, so
// Classify never returns an error.
package event
