package chat

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
)

func TestSessionManagerRegister(t *testing.T) {
	sm := NewSessionManager()
	conn := &websocket.Conn{}

	sm.Register("user123", "tab-1", conn)

	assert.Same(t, conn, sm.GetActive("user123", "tab-1"))
	assert.Equal(t, 1, sm.Count())
}

func TestSessionManagerUnregister(t *testing.T) {
	sm := NewSessionManager()
	conn := &websocket.Conn{}

	sm.Register("user123", "tab-1", conn)
	sm.Unregister("user123", "tab-1", conn)

	assert.Nil(t, sm.GetActive("user123", "tab-1"))
	assert.Zero(t, sm.Count())
}

func TestSessionManagerUnregisterKeepsOtherTabs(t *testing.T) {
	sm := NewSessionManager()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	sm.Register("user123", "tab-1", conn1)
	sm.Register("user123", "tab-2", conn2)
	sm.Unregister("user123", "tab-1", conn1)

	assert.Same(t, conn2, sm.GetActive("user123", "tab-2"))
}

func TestSessionManagerIgnoresStaleUnregister(t *testing.T) {
	sm := NewSessionManager()
	stale := &websocket.Conn{}
	current := &websocket.Conn{}

	// Registering the same conn twice must not try to close it.
	sm.Register("user123", "tab-1", stale)
	sm.Register("user123", "tab-1", stale)

	sm.mu.Lock()
	sm.active["user123"]["tab-1"] = current
	sm.mu.Unlock()

	sm.Unregister("user123", "tab-1", stale)
	assert.Same(t, current, sm.GetActive("user123", "tab-1"))
}

func TestSessionManagerConcurrentAccess(t *testing.T) {
	sm := NewSessionManager()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.Register("concurrentUser", "tab-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			sm.GetActive("concurrentUser", "tab-"+strconv.Itoa(i))
		}
	}()

	wg.Wait()
	assert.Equal(t, 1000, sm.Count())
}
