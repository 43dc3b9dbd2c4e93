package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"  Alex  ", "Alex", true},
		{"", "", false},
		{"   ", "", false},
		{strings.Repeat("a", 64), strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), strings.Repeat("a", 65), false},
		{strings.Repeat("é", 64), strings.Repeat("é", 64), true},
		{"José", "José", true},
	}
	for _, tt := range tests {
		got, ok := NormalizeName(tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.in)
	}
}

func TestAvatarColor_Deterministic(t *testing.T) {
	assert.Equal(t, AvatarColor("Alex"), AvatarColor("Alex"))
	assert.Equal(t, AvatarColor("alex"), AvatarColor("ALEX"))
	assert.Regexp(t, `^hsl\(\d{1,3}, 65%, 45%\)$`, AvatarColor("Sam"))
}

func TestDeriveMessageKind(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		mimes []string
		want  MessageKind
	}{
		{"text only", "hi", nil, MessageText},
		{"single image", "", []string{"image/png"}, MessageImage},
		{"single image blank text", "   ", []string{"IMAGE/JPEG"}, MessageImage},
		{"single file", "", []string{"application/pdf"}, MessageFile},
		{"file with text", "see attached", []string{"application/pdf"}, MessageMixed},
		{"two files", "", []string{"image/png", "image/gif"}, MessageMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveMessageKind(tt.text, tt.mimes))
		})
	}
}

func TestAttachmentKindOf(t *testing.T) {
	assert.Equal(t, AttachmentImage, AttachmentKindOf("image/webp"))
	assert.Equal(t, AttachmentFile, AttachmentKindOf("text/plain"))
	assert.Equal(t, AttachmentFile, AttachmentKindOf(""))
}

func TestDirectKey_OrderIndependent(t *testing.T) {
	assert.Equal(t, DirectKey("b", "a"), DirectKey("a", "b"))
	assert.Equal(t, "a|b", DirectKey("b", "a"))
}

func TestChatActivity(t *testing.T) {
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Chat{UpdatedAt: updated}
	assert.Equal(t, updated, c.Activity())

	later := updated.Add(time.Hour)
	c.Touch(later)
	assert.Equal(t, later, c.Activity())
	assert.Equal(t, later, c.UpdatedAt)
}

func TestMembershipActive(t *testing.T) {
	m := &Membership{}
	assert.True(t, m.Active())
	now := time.Now()
	m.LeftAt = &now
	assert.False(t, m.Active())
}
