package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"lunchsail/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSMessage — событие, отправляемое подключённым клиентам. Полезной нагрузки
// нет: клиент в ответ сам перезапрашивает список комнат.
type WSMessage struct {
	EventType string `json:"event_type"`
}

const EventRoomRefresh = "room_refresh"

// BroadcastMessage представляет сообщение для рассылки клиентам одной компании.
type BroadcastMessage struct {
	CompanyID string
	Message   []byte
}

// Hub хранит подключения клиентов, сгруппированные по companyID.
type Hub struct {
	clients map[string]map[*Client]bool
	// Канал для регистрации нового клиента.
	register chan *Client
	// Канал для удаления клиента.
	unregister chan *Client
	// Канал для трансляции сообщений клиентам конкретной компании.
	broadcast chan BroadcastMessage
	// Mutex для защиты карты клиентов.
	mu sync.RWMutex
}

// Создаем глобальный экземпляр хаба.
var HubInstance = NewHub()

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage, 64),
	}
}

// Run запускает цикл обработки каналов хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.CompanyID] == nil {
				h.clients[client.CompanyID] = make(map[*Client]bool)
			}
			h.clients[client.CompanyID][client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.CompanyID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.CompanyID)
					}
				}
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[message.CompanyID]; ok {
				for client := range clients {
					select {
					case client.Send <- message.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastWSMessage рассылает событие всем подключённым клиентам компании.
// Отправка неблокирующая: если хаб не успевает, событие теряется — клиенты
// в любом случае периодически перезапрашивают список.
func (h *Hub) BroadcastWSMessage(companyID string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- BroadcastMessage{CompanyID: companyID, Message: data}:
	default:
	}
}

// refreshEvent — формат сообщения в Redis-канале между инстансами сервера.
type refreshEvent struct {
	CompanyID uint   `json:"company_id"`
	EventType string `json:"event_type"`
}

const redisChannel = "room_refresh"

var notifyCtx = context.Background()

// NotifyRoomRefresh публикует уведомление "обновите список комнат" для всех
// клиентов компании. Вызывается только после успешного коммита транзакции.
// Доставка best-effort: ошибка публикации логируется и не влияет на запрос.
func NotifyRoomRefresh(companyID uint) {
	event := refreshEvent{CompanyID: companyID, EventType: EventRoomRefresh}
	if storage.RedisClient != nil {
		payload, err := json.Marshal(event)
		if err == nil {
			if err := storage.RedisClient.Publish(notifyCtx, redisChannel, payload).Err(); err == nil {
				return
			} else {
				zap.L().Warn("Не удалось опубликовать уведомление в Redis", zap.Error(err))
			}
		}
	}
	// Фолбэк без Redis: рассылаем только клиентам этого инстанса.
	HubInstance.BroadcastWSMessage(strconv.FormatUint(uint64(companyID), 10), WSMessage{EventType: EventRoomRefresh})
}

// RunRedisBridge подписывается на Redis-канал уведомлений и транслирует
// события локальным WebSocket-клиентам. Благодаря этому уведомления доходят
// до клиентов любого инстанса при горизонтальном масштабировании.
func (h *Hub) RunRedisBridge(ctx context.Context) {
	if storage.RedisClient == nil {
		return
	}
	pubsub := storage.RedisClient.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var event refreshEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			zap.L().Warn("Непонятное сообщение в канале уведомлений", zap.Error(err))
			continue
		}
		h.BroadcastWSMessage(strconv.FormatUint(uint64(event.CompanyID), 10), WSMessage{EventType: event.EventType})
	}
}

// Client представляет одно подключение через WebSocket.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	CompanyID string
}

// readPump читает сообщения из WebSocket-соединения.
// Входящие сообщения не обрабатываются — только отслеживаем разрыв соединения.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump отправляет сообщения клиенту из канала Send.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Канал закрыт.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			// Отправка ping-сообщения для поддержания соединения.
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Настраиваем апгрейдер для WebSocket с разрешением всех источников.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoomWebSocketHandler обновляет соединение до WebSocket и регистрирует клиента
// в Hub по companyID из токена. URL: /api/ws?token=...
func RoomWebSocketHandler(c *gin.Context) {
	companyID := c.GetUint("companyID")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		http.Error(c.Writer, "Ошибка обновления до WebSocket", http.StatusInternalServerError)
		return
	}
	client := &Client{
		Hub:       HubInstance,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		CompanyID: strconv.FormatUint(uint64(companyID), 10),
	}
	HubInstance.register <- client

	go client.writePump()
	client.readPump()
}
