package chat

import "github.com/matheus3301/meeple/internal/backend"

// MergeMessages combines a fetched history page with live-pushed messages. Every
// id appears once; the first occurrence wins. History keeps its order and live
// messages follow in arrival order.
func MergeMessages(history, live []backend.ChatMessage) []backend.ChatMessage {
	out := make([]backend.ChatMessage, 0, len(history)+len(live))
	seen := make(map[string]struct{}, len(history)+len(live))
	for _, batch := range [][]backend.ChatMessage{history, live} {
		for _, m := range batch {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}
