package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/feed"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/services"
)

const writeWait = 10 * time.Second

// オリジンの検証はCORSと認証ミドルウェアに任せる
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FeedHandler は変更通知をWebSocketで配信します。
type FeedHandler struct {
	hub *feed.Hub
}

func NewFeedHandler(hub *feed.Hub) *FeedHandler {
	return &FeedHandler{hub: hub}
}

// StreamHandler は tasks テーブルの変更ごとに Change をJSONで1件送ります。
// 通知は内容を持たず、受け取った側が一覧を読み直します。
func (h *FeedHandler) StreamHandler(c *gin.Context) {
	if _, ok := actorFromContext(c); !ok {
		return
	}
	table := c.DefaultQuery("table", services.TasksTable)
	if table != services.TasksTable {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown table"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade feed connection")
		return
	}
	defer conn.Close()

	// ハブは購読者ごとに1つのゴルーチンから呼ぶので書き込みは直列になる
	sub := h.hub.Subscribe(table, func(change feed.Change) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(change); err != nil {
			log.WithError(err).Debug("Failed to write feed notification")
			_ = conn.Close()
		}
	})
	defer sub.Unsubscribe()

	// 受信は切断の検知にだけ使う
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("Feed connection closed unexpectedly")
			}
			return
		}
	}
}
