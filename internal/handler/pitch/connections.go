package pitch

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsClient 串行化单个 websocket 连接的写操作
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// ConnectionManager 每个会话最多保留一个 websocket 连接
type ConnectionManager struct {
	mu    sync.Mutex
	conns map[string]*wsClient
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{conns: make(map[string]*wsClient)}
}

// Add 注册连接；同一会话的旧连接会被关闭
func (cm *ConnectionManager) Add(sessionID string, c *wsClient) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if old, ok := cm.conns[sessionID]; ok && old != c {
		old.conn.Close()
	}
	cm.conns[sessionID] = c
}

// Remove 仅在连接仍为当前连接时移除
func (cm *ConnectionManager) Remove(sessionID string, c *wsClient) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cur, ok := cm.conns[sessionID]; ok && cur == c {
		delete(cm.conns, sessionID)
	}
}

// Count 当前连接数
func (cm *ConnectionManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

// CloseAll 关闭所有连接
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for id, c := range cm.conns {
		c.conn.Close()
		delete(cm.conns, id)
	}
}
