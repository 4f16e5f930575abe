package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"devconnect/chat-service/internal/auth"
	"devconnect/chat-service/internal/models"
	"devconnect/chat-service/internal/service"
	"devconnect/chat-service/internal/ws"
)

const userContextKey = "user"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Handshake identity comes from the cookie credential, not the origin.
		return true
	},
}

// Router wires the authenticated surface: the websocket gateway plus the chat
// REST endpoints.
type Router struct {
	verifier   *auth.Verifier
	chats      service.ChatService
	hub        *ws.Hub
	dispatcher *ws.Dispatcher
	cookieName string
	logger     *logrus.Logger
}

func NewRouter(verifier *auth.Verifier, chats service.ChatService, hub *ws.Hub, dispatcher *ws.Dispatcher, cookieName string, logger *logrus.Logger) *Router {
	return &Router{
		verifier:   verifier,
		chats:      chats,
		hub:        hub,
		dispatcher: dispatcher,
		cookieName: cookieName,
		logger:     logger,
	}
}

// Handler builds the gin engine. Every route except /healthz runs the
// credential check.
func (r *Router) Handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authorized := engine.Group("/", r.authRequired())
	authorized.GET("/ws", r.handleWS)
	authorized.GET("/chats", r.handleGetChats)
	authorized.GET("/chats/:chatId/messages", r.handleGetChatMessages)
	authorized.POST("/chats/:chatId/seen", r.handleMarkSeen)

	return engine
}

// authRequired verifies the cookie credential once per request and attaches
// the resolved principal. The failure reason goes to the rejected client
// only.
func (r *Router) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(r.cookieName)

		user, err := r.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authErr.Error()})
				return
			}
			r.logger.WithError(err).Error("Credential verification failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication unavailable"})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	user, _ := c.MustGet(userContextKey).(*models.User)
	return user
}

// handleWS upgrades the connection and binds the authenticated principal to
// it for its entire lifetime. No event is dispatched before this point.
func (r *Router) handleWS(c *gin.Context) {
	user := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(r.hub, conn, user.ID)
	go client.WritePump()
	go client.ReadPump(r.dispatcher)
}

func (r *Router) handleGetChats(c *gin.Context) {
	user := currentUser(c)

	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 10)

	conversations, err := r.chats.GetUserConversations(c.Request.Context(), user.ID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch chats"})
		return
	}
	if conversations == nil {
		conversations = []*models.Conversation{}
	}

	c.JSON(http.StatusOK, conversations)
}

func (r *Router) handleGetChatMessages(c *gin.Context) {
	user := currentUser(c)

	limit := queryInt(c, "limit", 50)
	before := c.Query("before")

	messages, err := r.chats.GetConversationMessagesPage(c.Request.Context(), c.Param("chatId"), user.ID, limit, before)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConversationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		case errors.Is(err, service.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant in this chat"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		}
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	c.JSON(http.StatusOK, messages)
}

func (r *Router) handleMarkSeen(c *gin.Context) {
	user := currentUser(c)

	count, err := r.chats.MarkMessagesAsSeen(c.Request.Context(), c.Param("chatId"), user.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConversationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		case errors.Is(err, service.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant in this chat"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages as seen"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"seenCount": count})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw, ok := c.GetQuery(name)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
