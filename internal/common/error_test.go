package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds_MatchWithErrorsIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"validation", Validation("send message", "message is empty"), ErrValidation},
		{"auth", Auth("sign in", "wrong password"), ErrAuth},
		{"not found", NotFound("leave group", "chat", "c1"), ErrNotFound},
		{"backend", Backend("send message", errors.New("disk full")), ErrBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)
			for _, other := range []error{ErrValidation, ErrAuth, ErrNotFound, ErrBackend} {
				if other != tt.kind {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestError_MessageAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Backend("get chats", cause)
	assert.Equal(t, "get chats: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	nf := NotFound("open chat", "chat", "abc")
	assert.Equal(t, `chat "abc" does not exist`, nf.Error())
	assert.ErrorIs(t, nf, ErrorNotFound)
}

func TestReason(t *testing.T) {
	err := fmt.Errorf("ctx: %w", Validation("send message", "file too large"))
	assert.Equal(t, "file too large", Reason(err))
	assert.Equal(t, "plain", Reason(errors.New("plain")))
	assert.Equal(t, "", Reason(nil))

	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "send message", typed.Op)
}
