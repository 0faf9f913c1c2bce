package protocol

import (
	"pleezer/internal/perrors"
)

// maxNestingDepth bounds how deep a chain of embedded protobuf messages
// may go before decoding is refused (spec.md §4.7: a prior CVE let
// crafted protobuf nest submessages deeply enough to exhaust the stack
// during decode). Every unmarshalX(data, depth) helper in messages.go
// (today only unmarshalQueueListItem) checks depth
// against this before decoding any field declared as an embedded message;
// depth only advances at those points, not at every length-delimited
// field (plain string/bytes fields are leaves, not recursion).
//
// The current message set embeds one level deep at most (QueueList's
// items are QueueListItem, which has no message-typed fields of its
// own), so the guard can't trip today; it stays low rather than at an
// arbitrary large value so it still means something if a future field
// adds another embedding level.
const maxNestingDepth = 4

func checkDepth(depth int) error {
	if depth > maxNestingDepth {
		return perrors.NewProtocol("protobuf message nesting exceeds limit", nil)
	}
	return nil
}
