package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/clinic-queue-api/internal/handler"
	"github.com/jwalitptl/clinic-queue-api/internal/middleware"
	"github.com/jwalitptl/clinic-queue-api/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws", h.Connect)
}

// Connect upgrades the request and subscribes the client to the topics its
// role entitles it to. Doctors see the clinic feed plus their own channel;
// patients see the shared patient feed plus their own channel.
func (h *Handler) Connect(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing actor identity"))
		return
	}

	var topics []string
	switch c.GetString(middleware.ContextActorRole) {
	case middleware.RoleDoctor:
		topics = []string{model.TopicClinic, model.DoctorTopic(actorID)}
	case middleware.RolePatient:
		topics = []string{model.TopicPatients, model.PatientTopic(actorID)}
	case middleware.RoleAdmin:
		topics = []string{model.TopicClinic, model.TopicPatients}
	default:
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("unknown role"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: topics,
	}
	h.hub.register(client)

	go client.writePump()
	go client.readPump(h.hub)
}
