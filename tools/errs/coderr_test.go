package errs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	assert.ErrorIs(t, ErrSessionFull, ErrSessionFull)
	assert.ErrorIs(t, ErrSessionFull.WithDetail("session s1"), ErrSessionFull)
	assert.NotErrorIs(t, ErrSessionFull, ErrCommentLimit)

	// wrap 链里也能认出来
	wrapped := errors.Wrap(ErrHighlightLimit, "create highlight")
	assert.ErrorIs(t, wrapped, ErrHighlightLimit)
}

func TestWithDetailKeepsOriginal(t *testing.T) {
	d := ErrNotFound.WithDetail("book b1")
	assert.Equal(t, "", ErrNotFound.Detail, "原错误不能被改掉")
	assert.Contains(t, d.Error(), "book b1")

	dd := d.WithDetail("more")
	assert.Contains(t, dd.Detail, "book b1")
	assert.Contains(t, dd.Detail, "more")
}

func TestKind(t *testing.T) {
	assert.Equal(t, "session_full", ErrSessionFull.Kind())
	assert.Equal(t, "rate_limited", ErrRateLimited.Kind())
	assert.Equal(t, "internal", NewCodeError(9999, "oops").Kind())
}

func TestIsQuota(t *testing.T) {
	assert.True(t, IsQuota(ErrSessionFull))
	assert.True(t, IsQuota(errors.Wrap(ErrReplyDepth, "comment")))
	assert.False(t, IsQuota(ErrValidation))
	assert.False(t, IsQuota(ErrPersistence))
	assert.False(t, IsQuota(errors.New("plain")))
}

func TestAsCode(t *testing.T) {
	assert.Nil(t, AsCode(errors.New("plain")))
	ce := AsCode(errors.Wrap(ErrCommentLimit, "ctx"))
	if assert.NotNil(t, ce) {
		assert.Equal(t, ErrCommentLimit.Code, ce.Code)
	}
}
