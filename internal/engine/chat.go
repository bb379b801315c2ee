package engine

import "strings"

// Transcript keeps the turns of a multi-round chat for engines without a
// native conversation API. The zero value is a closed chat.
type Transcript struct {
	open  bool
	turns []turn
}

type turn struct {
	user      string
	assistant string
}

// Start opens a fresh conversation, discarding any previous turns.
func (t *Transcript) Start() {
	t.open = true
	t.turns = t.turns[:0]
}

// Finish closes the conversation.
func (t *Transcript) Finish() {
	t.open = false
	t.turns = nil
}

// Open reports whether a conversation is active.
func (t *Transcript) Open() bool { return t.open }

// Prompt renders the history followed by the new user message. Outside an
// open chat it returns user unchanged.
func (t *Transcript) Prompt(user string) string {
	if !t.open || len(t.turns) == 0 {
		return user
	}
	var b strings.Builder
	for _, tr := range t.turns {
		b.WriteString("User: ")
		b.WriteString(tr.user)
		b.WriteString("\nAssistant: ")
		b.WriteString(tr.assistant)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(user)
	b.WriteString("\nAssistant: ")
	return b.String()
}

// Record appends a completed turn. Ignored outside an open chat.
func (t *Transcript) Record(user, assistant string) {
	if !t.open {
		return
	}
	t.turns = append(t.turns, turn{user: user, assistant: assistant})
}
