package reactor

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterrupted(t *testing.T) {
	assert.True(t, interrupted(syscall.EINTR))
	assert.True(t, interrupted(fmt.Errorf("epoll wait: %w", syscall.EINTR)))
	assert.False(t, interrupted(fmt.Errorf("epoll wait: %w", syscall.EBADF)))
	assert.False(t, interrupted(errors.New("interrupted system call")))
	assert.False(t, interrupted(nil))
}
