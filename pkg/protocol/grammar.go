package protocol

import (
	"errors"
	"strings"
)

// Delimiter separates the verb and arguments within a frame payload.
const Delimiter = ";"

// ErrEmptyPayload is returned by Parse when given a frame payload with no
// content at all (after stripping a trailing newline). Per the grammar,
// such frames are dropped silently by callers — this error exists so they
// have something to check for.
var ErrEmptyPayload = errors.New("protocol: empty command payload")

// Build assembles a command frame payload from a verb and its arguments:
// "VERB;arg1;arg2;...\n". Build always appends a trailing newline. Callers
// must ensure no argument contains Delimiter — the grammar has no escaping
// mechanism, so a delimiter inside an argument would be indistinguishable
// from a field boundary on the receiving end.
func Build(verb string, args ...string) []byte {
	parts := make([]string, 0, 1+len(args))
	parts = append(parts, verb)
	parts = append(parts, args...)
	return []byte(strings.Join(parts, Delimiter) + "\n")
}

// Parse splits a frame payload into a verb and its arguments. A single
// trailing newline is tolerated and stripped before splitting. Parse returns
// ErrEmptyPayload for payloads that are empty (or only a newline); callers
// are expected to drop such frames without replying.
func Parse(payload []byte) (verb string, args []string, err error) {
	text := string(payload)
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return "", nil, ErrEmptyPayload
	}

	fields := strings.Split(text, Delimiter)
	return fields[0], fields[1:], nil
}
