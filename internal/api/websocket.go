// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// 连接心跳参数
const (
	wsPingInterval = 54 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 64
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection WebSocket 连接的最小接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 订阅某个项目事件的客户端
type WebSocketClient struct {
	conn      WebSocketConnection
	projectID string
	send      chan []byte
	done      chan struct{}
	closed    int32
	lastPing  atomic.Int64
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, projectID string) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		projectID: projectID,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		client.conn.Close()
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后活跃时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// enqueue 非阻塞投递，队列满时返回 false
func (client *WebSocketClient) enqueue(message []byte) bool {
	if client.IsClosed() {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// SendMessage 序列化并投递消息
func (client *WebSocketClient) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if !client.enqueue(data) {
		utils.GetLogger().Warn("客户端消息队列已满，消息被丢弃", map[string]interface{}{"project_id": client.projectID})
	}
	return nil
}

// WebSocketHub 按项目分组管理连接并推送项目事件
type WebSocketHub struct {
	connections map[string]map[*WebSocketClient]struct{}
	mutex       sync.RWMutex
	pingTimeout time.Duration
}

// NewWebSocketHub 创建连接中心
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		connections: make(map[string]map[*WebSocketClient]struct{}),
		pingTimeout: wsPongTimeout,
	}
}

// Register 登记客户端
func (hub *WebSocketHub) Register(client *WebSocketClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if hub.connections[client.projectID] == nil {
		hub.connections[client.projectID] = make(map[*WebSocketClient]struct{})
	}
	hub.connections[client.projectID][client] = struct{}{}
	utils.GetLogger().Debug("WebSocket 客户端已连接", map[string]interface{}{"project_id": client.projectID})
}

// Unregister 注销并关闭客户端
func (hub *WebSocketHub) Unregister(client *WebSocketClient) {
	hub.mutex.Lock()
	if connections, exists := hub.connections[client.projectID]; exists {
		delete(connections, client)
		if len(connections) == 0 {
			delete(hub.connections, client.projectID)
		}
	}
	hub.mutex.Unlock()

	client.Close()
}

// CleanupExpiredConnections 清理已关闭或心跳超时的连接，返回清理数量
func (hub *WebSocketHub) CleanupExpiredConnections() int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	removed := 0
	for projectID, connections := range hub.connections {
		for client := range connections {
			if client.IsClosed() || client.IsExpired(hub.pingTimeout) {
				delete(connections, client)
				client.Close()
				removed++
			}
		}
		if len(connections) == 0 {
			delete(hub.connections, projectID)
		}
	}
	return removed
}

func (hub *WebSocketHub) clients(projectID string) []*WebSocketClient {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	out := make([]*WebSocketClient, 0)
	for id, connections := range hub.connections {
		if projectID != "" && id != projectID {
			continue
		}
		for client := range connections {
			if !client.IsClosed() {
				out = append(out, client)
			}
		}
	}
	return out
}

// deliver 发送给一批客户端，队列满的客户端视为失效
func (hub *WebSocketHub) deliver(clients []*WebSocketClient, message interface{}) int {
	data, err := json.Marshal(message)
	if err != nil {
		utils.GetLogger().Error("序列化广播消息失败", map[string]interface{}{"error": err.Error()})
		return 0
	}

	delivered := 0
	for _, client := range clients {
		if client.enqueue(data) {
			delivered++
			continue
		}
		hub.Unregister(client)
	}
	return delivered
}

// BroadcastToProject 向订阅某项目的客户端广播，返回送达数量
func (hub *WebSocketHub) BroadcastToProject(projectID string, message interface{}) int {
	return hub.deliver(hub.clients(projectID), message)
}

// BroadcastAll 向所有客户端广播
func (hub *WebSocketHub) BroadcastAll(message interface{}) int {
	return hub.deliver(hub.clients(""), message)
}

// GetStatus 连接统计
func (hub *WebSocketHub) GetStatus() map[string]interface{} {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	projects := make(map[string]int, len(hub.connections))
	total := 0
	for projectID, connections := range hub.connections {
		projects[projectID] = len(connections)
		total += len(connections)
	}
	return map[string]interface{}{
		"total_projects":    len(hub.connections),
		"total_connections": total,
		"projects":          projects,
	}
}

// Shutdown 关闭所有连接
func (hub *WebSocketHub) Shutdown() {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	for _, connections := range hub.connections {
		for client := range connections {
			client.Close()
		}
	}
	hub.connections = make(map[string]map[*WebSocketClient]struct{})
}

// Serve 运行客户端读写循环，直到连接断开
func (hub *WebSocketHub) Serve(client *WebSocketClient) {
	hub.Register(client)
	defer hub.Unregister(client)

	go hub.writePump(client)
	client.SendMessage(map[string]interface{}{
		"type":       "connected",
		"project_id": client.projectID,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
	hub.readPump(client)
}

// readPump 读取客户端消息，只处理 ping
func (hub *WebSocketHub) readPump(client *WebSocketClient) {
	client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for !client.IsClosed() {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.GetLogger().Warn("WebSocket 读取错误", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		var message struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &message) == nil && message.Type == "ping" {
			client.SendMessage(map[string]interface{}{"type": "pong", "timestamp": time.Now().Unix()})
		}
	}
}

// writePump 发送排队的消息并定期 ping
func (hub *WebSocketHub) writePump(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case message := <-client.send:
			if client.IsClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			if client.IsClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}

// ProjectWebSocket 订阅项目变更与进度事件
func (h *Handler) ProjectWebSocket(c *gin.Context) {
	projectID := c.Param("pid")
	if _, err := h.Store.Get(projectID); err != nil {
		h.Response.HandleError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warn("WebSocket 升级失败", map[string]interface{}{"error": err.Error()})
		return
	}
	h.Hub.Serve(newWebSocketClient(conn, projectID))
}

// WebSocketStatus 连接统计
func (h *Handler) WebSocketStatus(c *gin.Context) {
	h.Response.Success(c, h.Hub.GetStatus())
}
