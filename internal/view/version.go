package view

// SchemaVersion identifies the classify/reduce rules that produced an index.
//
// Version history:
// 1 - Invite, accept and end folding with winner inference
// 2 - Invite touches last_updated on existing records; end never clears a winner
const SchemaVersion = 2
