package irc

import "strings"

type batchType int

const (
	batchOther batchType = iota
	batchChatHistory
	batchHistory
	batchZNCPlayback
)

func classifyBatch(name string) batchType {
	switch strings.ToLower(name) {
	case "chathistory", "draft/chathistory":
		return batchChatHistory
	case "history":
		return batchHistory
	case "znc.in/playback":
		return batchZNCPlayback
	default:
		return batchOther
	}
}

// batchContext tracks one open BATCH reference tag.
type batchContext struct {
	typ      batchType
	target   string
	messages int
}

// BatchManager tracks open BATCH reference tags, flags messages delivered
// inside playback batches, and produces the aggregate completion event when a
// batch closes.
type BatchManager struct {
	open map[string]*batchContext
}

func NewBatchManager() *BatchManager {
	return &BatchManager{open: map[string]*batchContext{}}
}

// Open starts a batch context for ref. The reference tag must not be in use;
// a duplicate open replaces the stale context (the server is authoritative).
func (m *BatchManager) Open(ref, name string, params []string) {
	b := &batchContext{typ: classifyBatch(name)}
	if len(params) > 0 {
		b.target = params[0]
	}
	m.open[ref] = b
}

// IsOpen reports whether ref is an open batch reference.
func (m *BatchManager) IsOpen(ref string) bool {
	_, ok := m.open[ref]
	return ok
}

// AddMessage counts a message delivered with batch=ref and reports whether
// the message is playback (replayed history rather than live traffic).
// Messages tagged with an unknown ref are not playback.
func (m *BatchManager) AddMessage(ref string) (playback bool) {
	b, ok := m.open[ref]
	if !ok {
		return false
	}
	b.messages++
	switch b.typ {
	case batchChatHistory, batchHistory, batchZNCPlayback:
		return true
	}
	return false
}

// Close finalizes and removes the batch context for ref, returning the
// completion event selected by the batch type, or nil for unrecognized types
// (netsplit and friends). Closing an unknown ref is a no-op: out-of-order or
// malformed "BATCH -" lines are not fatal.
func (m *BatchManager) Close(ref string) Event {
	b, ok := m.open[ref]
	if !ok {
		return nil
	}
	delete(m.open, ref)
	switch b.typ {
	case batchChatHistory:
		return ChatHistoryEndEvent{Ref: ref, Target: b.target, Messages: b.messages}
	case batchHistory:
		return EventPlaybackEndEvent{Ref: ref, Target: b.target, Messages: b.messages}
	case batchZNCPlayback:
		return BouncerPlaybackEndEvent{Ref: ref, Target: b.target, Messages: b.messages}
	}
	return nil
}

// Reset discards every open batch without emitting completion events; a batch
// that never received its "BATCH -ref" does not retroactively complete.
func (m *BatchManager) Reset() {
	m.open = map[string]*batchContext{}
}
