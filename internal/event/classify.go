package event

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed events.cue
var eventsSchema string

// definitions maps a content type to its CUE definition path.
var definitions = map[string]string{
	TypeInvite: "#Invite",
	TypeAccept: "#Accept",
	TypeEnd:    "#End",
}

// readFields lists, per content type, the fields the index reads. Only these
// are checked against the definition; anything else in the content is ignored.
var readFields = map[string][]string{
	TypeInvite: {"type", "inviting", "myColor"},
	TypeAccept: {"type", "root"},
	TypeEnd:    {"type", "root", "status"},
}

// contextBudget is how many values are built in one cue.Context before it is
// replaced. A context keeps everything encoded into it until it is dropped.
const contextBudget = 1024

// Classifier turns raw log entries into events.
//
// A cue.Context is not safe for concurrent use, so Classify serializes
// callers. The index store only classifies from its single writer anyway.
type Classifier struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[string]cue.Value
	uses int
}

// NewClassifier compiles the embedded event definitions.
func NewClassifier() (*Classifier, error) {
	c := &Classifier{}
	if err := c.reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// reset compiles the schema into a fresh context, releasing the old one.
func (c *Classifier) reset() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(eventsSchema, cue.Filename("events.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile event schema: %w", err)
	}

	defs := make(map[string]cue.Value, len(definitions))
	for typ, path := range definitions {
		def := schema.LookupPath(cue.ParsePath(path))
		if !def.Exists() {
			return fmt.Errorf("event schema: definition %s not found", path)
		}
		defs[typ] = def
	}

	c.ctx, c.defs, c.uses = ctx, defs, 0
	return nil
}

// MustClassifier is like NewClassifier but panics on error.
// The schema is embedded, so an error here is a build defect.
func MustClassifier() *Classifier {
	c, err := NewClassifier()
	if err != nil {
		panic(err)
	}
	return c
}

type contentHeader struct {
	Type string `json:"type"`
}

type inviteContent struct {
	Inviting string `json:"inviting"`
	MyColor  string `json:"myColor"`
}

type rootContent struct {
	Root   string `json:"root"`
	Status string `json:"status"`
}

// Classify returns the event an entry declares, or false if the entry is not
// one of the recognised kinds or does not match its definition.
func (c *Classifier) Classify(e Entry) (Event, bool) {
	if e.ID == "" || len(e.Content) == 0 {
		return Event{}, false
	}

	var head contentHeader
	if err := json.Unmarshal(e.Content, &head); err != nil {
		return Event{}, false
	}
	if !c.matches(head.Type, e.Content) {
		return Event{}, false
	}

	switch head.Type {
	case TypeInvite:
		if e.Author == "" {
			return Event{}, false
		}
		var body inviteContent
		if err := json.Unmarshal(e.Content, &body); err != nil {
			return Event{}, false
		}
		ev := Invite(GameID(e.ID), e.Author, PlayerID(body.Inviting), body.MyColor)
		ev.Seq = e.Seq
		return ev, true

	case TypeAccept:
		var body rootContent
		if err := json.Unmarshal(e.Content, &body); err != nil {
			return Event{}, false
		}
		ev := Accept(GameID(body.Root))
		ev.Seq = e.Seq
		return ev, true

	case TypeEnd:
		var body rootContent
		if err := json.Unmarshal(e.Content, &body); err != nil {
			return Event{}, false
		}
		ev := End(GameID(body.Root), body.Status, e.Author)
		ev.Seq = e.Seq
		return ev, true
	}

	return Event{}, false
}

// matches unifies the fields the index reads with the definition registered
// for typ.
func (c *Classifier) matches(typ string, content []byte) bool {
	fields, ok := readFields[typ]
	if !ok {
		return false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return false
	}
	read := make(map[string]any, len(fields))
	for _, name := range fields {
		data, ok := raw[name]
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return false
		}
		read[name] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.uses >= contextBudget {
		if err := c.reset(); err != nil {
			return false
		}
	}
	c.uses++

	v := c.ctx.Encode(read)
	if v.Err() != nil {
		return false
	}
	return c.defs[typ].Unify(v).Validate(cue.Concrete(true)) == nil
}
