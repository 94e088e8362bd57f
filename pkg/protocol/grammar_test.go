package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBuildRoundTrip(t *testing.T) {
	cases := []struct {
		verb string
		args []string
	}{
		{"CONNECT", []string{"alice"}},
		{"SEND", []string{"bob", "Hi", "hello there"}},
		{"DISCONNECT", nil},
		{"LIST_USERS", []string{}},
	}

	for _, c := range cases {
		payload := Build(c.verb, c.args...)
		verb, args, err := Parse(payload)
		assert.NoError(t, err)
		assert.Equal(t, c.verb, verb)
		if len(c.args) == 0 {
			assert.Empty(t, args)
		} else {
			assert.Equal(t, c.args, args)
		}
	}
}

func TestBuildAppendsTrailingNewline(t *testing.T) {
	payload := Build("PING")
	assert.Equal(t, byte('\n'), payload[len(payload)-1])
}

func TestParseTrimsTrailingNewline(t *testing.T) {
	verb, args, err := Parse([]byte("SEND;bob;hi;body\n"))
	assert.NoError(t, err)
	assert.Equal(t, "SEND", verb)
	assert.Equal(t, []string{"bob", "hi", "body"}, args)
}

func TestParseEmptyPayloadDropped(t *testing.T) {
	_, _, err := Parse(nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, _, err = Parse([]byte("\n"))
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestSanitizeReplacesControlChars(t *testing.T) {
	in := "hello\x00world\x01\n\tend"
	out := Sanitize(in)
	assert.Equal(t, "hello world \n\tend", out)
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("alice_99", 20))
	assert.ErrorIs(t, ValidateUsername("", 20), ErrUsernameEmpty)
	assert.ErrorIs(t, ValidateUsername("has space", 20), ErrUsernameChars)
	assert.ErrorIs(t, ValidateUsername("toolongtoolongtoolong", 20), ErrUsernameTooLong)

	exact := make([]byte, 20)
	for i := range exact {
		exact[i] = 'a'
	}
	assert.NoError(t, ValidateUsername(string(exact), 20))

	oneMore := string(exact) + "a"
	assert.ErrorIs(t, ValidateUsername(oneMore, 20), ErrUsernameTooLong)
}

func TestValidateSubjectAndBody(t *testing.T) {
	assert.NoError(t, ValidateSubject("hi", 10))
	assert.ErrorIs(t, ValidateSubject("", 10), ErrSubjectEmpty)
	assert.ErrorIs(t, ValidateSubject("way too long", 10), ErrSubjectTooLong)

	assert.NoError(t, ValidateBody("x"))
	assert.ErrorIs(t, ValidateBody(""), ErrBodyEmpty)
}
