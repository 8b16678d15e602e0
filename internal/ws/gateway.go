package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/linguaverse/messaging-service/internal/apperr"
	"github.com/linguaverse/messaging-service/internal/auth"
	"github.com/linguaverse/messaging-service/internal/metrics"
	"github.com/linguaverse/messaging-service/internal/presence"
	"github.com/linguaverse/messaging-service/internal/service"
)

// authGraceDelay gives the error frame time to flush before teardown.
const authGraceDelay = 250 * time.Millisecond

type GatewayConfig struct {
	JWTSecret         string
	PingInterval      time.Duration
	WriteDeadline     time.Duration
	MaxMessageSize    int64
	SendRatePerSecond float64
	SendBurst         int
}

// Gateway authenticates each live connection, maintains the registry through
// the hub, and routes protocol events to the pipeline and tracker.
type Gateway struct {
	hub      *Hub
	pipeline *service.MessagePipeline
	tracker  *presence.Tracker
	cfg      GatewayConfig
	log      *zap.SugaredLogger
}

func NewGateway(hub *Hub, pipeline *service.MessagePipeline, tracker *presence.Tracker, cfg GatewayConfig, log *zap.SugaredLogger) *Gateway {
	return &Gateway{hub: hub, pipeline: pipeline, tracker: tracker, cfg: cfg, log: log}
}

// extractToken pulls the bearer credential from the auth query field, the
// token query parameter, or the Authorization header; first non-empty wins.
func extractToken(c *websocket.Conn) string {
	if t := c.Query("auth"); t != "" {
		return t
	}
	if t := c.Query("token"); t != "" {
		return t
	}
	return auth.ParseBearerToken(c.Headers("Authorization"))
}

// Handle runs the full lifecycle of one connection. It is mounted behind the
// fiber websocket upgrade middleware and returns when the peer goes away.
func (g *Gateway) Handle(c *websocket.Conn) {
	token := extractToken(c)
	if token == "" {
		g.rejectAuth(c, auth.CodeTokenMissing, "authentication token required")
		return
	}
	claims, err := auth.ParseAndValidateToken(g.cfg.JWTSecret, token)
	if err != nil {
		g.rejectAuth(c, auth.ClassifyError(err), "authentication failed")
		return
	}

	ctx := context.Background()
	client := NewClient(c, claims.UserID, claims.Username)
	g.hub.Register(client)
	metrics.ActiveConnections.Inc()

	if err := g.tracker.SetStatus(ctx, client.UserID, client.Username, presence.StatusOnline, ""); err != nil {
		g.log.Warnw("presence update failed", "user_id", client.UserID, "err", err)
	}
	g.hub.BroadcastExcept(client.UserID, EventUserOnline, map[string]any{
		"user_id":  client.UserID,
		"username": client.Username,
	})
	g.log.Infow("connected", "user_id", client.UserID)

	go client.WritePump(g.cfg.PingInterval, g.cfg.WriteDeadline)

	limiter := rate.NewLimiter(rate.Limit(g.cfg.SendRatePerSecond), g.cfg.SendBurst)
	c.SetReadLimit(g.cfg.MaxMessageSize)
	for {
		mt, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			g.sendError(client, apperr.Validation("malformed event"))
			continue
		}
		g.dispatch(ctx, client, limiter, env)
	}

	// teardown is an implicit offline transition, not just registry removal
	g.hub.Unregister(client)
	metrics.ActiveConnections.Dec()
	g.tracker.Disconnect(ctx, client.UserID)
	g.hub.BroadcastExcept(client.UserID, EventUserOffline, map[string]any{
		"user_id":  client.UserID,
		"username": client.Username,
	})
	client.Close()
	g.log.Infow("disconnected", "user_id", client.UserID)
}

func (g *Gateway) dispatch(ctx context.Context, client *Client, limiter *rate.Limiter, env Envelope) {
	switch env.Type {
	case EventSendMessage:
		if !limiter.Allow() {
			g.sendError(client, apperr.Validation("message rate limit exceeded"))
			return
		}
		var in service.SendInput
		if err := json.Unmarshal(env.Payload, &in); err != nil {
			g.sendError(client, apperr.Validation("malformed send_message payload"))
			return
		}
		in.SenderID = client.UserID
		if _, err := g.pipeline.Send(ctx, in); err != nil {
			g.sendError(client, err)
			return
		}
		metrics.MessagesSent.Inc()

	case EventJoinConversation:
		convID, ok := g.conversationID(client, env.Payload)
		if !ok {
			return
		}
		g.hub.Join(ConversationRoom(convID), client)

	case EventLeaveConversation:
		convID, ok := g.conversationID(client, env.Payload)
		if !ok {
			return
		}
		g.hub.Leave(ConversationRoom(convID), client)

	case EventTypingStart:
		convID, ok := g.conversationID(client, env.Payload)
		if !ok {
			return
		}
		if err := g.tracker.StartTyping(ctx, convID, client.UserID, client.Username); err != nil {
			g.sendError(client, err)
		}

	case EventTypingStop:
		convID, ok := g.conversationID(client, env.Payload)
		if !ok {
			return
		}
		g.tracker.StopTyping(convID, client.UserID)

	case EventMarkRead:
		var p struct {
			MessageID string `json:"message_id"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.MessageID == "" {
			g.sendError(client, apperr.Validation("message_id is required"))
			return
		}
		if _, err := g.pipeline.MarkRead(ctx, p.MessageID, client.UserID); err != nil {
			g.sendError(client, err)
		}

	case EventStatusUpdate:
		var p struct {
			Status        string `json:"status"`
			CustomMessage string `json:"custom_message"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			g.sendError(client, apperr.Validation("malformed status_update payload"))
			return
		}
		if err := g.tracker.SetStatus(ctx, client.UserID, client.Username, presence.Status(p.Status), p.CustomMessage); err != nil {
			g.sendError(client, err)
		}

	default:
		g.sendError(client, apperr.Validation("unknown event %q", env.Type))
	}
}

func (g *Gateway) conversationID(client *Client, payload json.RawMessage) (string, bool) {
	var p struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.ConversationID == "" {
		g.sendError(client, apperr.Validation("conversation_id is required"))
		return "", false
	}
	return p.ConversationID, true
}

// sendError converts a domain error into a non-fatal error event on the
// originating connection. Only authentication failures disconnect.
func (g *Gateway) sendError(client *Client, err error) {
	msg := err.Error()
	if !apperr.IsKind(err, apperr.KindValidation) &&
		!apperr.IsKind(err, apperr.KindAuthorization) &&
		!apperr.IsKind(err, apperr.KindNotFound) {
		g.log.Errorw("request failed", "user_id", client.UserID, "err", err)
		msg = "internal error"
	}
	client.Enqueue(Encode(EventError, map[string]any{"message": msg}))
}

// rejectAuth emits a single structured auth_error frame, waits out the grace
// delay so the frame reaches the peer, then forces teardown.
func (g *Gateway) rejectAuth(c *websocket.Conn, code, message string) {
	metrics.AuthFailures.WithLabelValues(code).Inc()
	frame := Encode(EventAuthError, map[string]any{
		"code":      code,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"action":    "disconnect",
	})
	_ = c.WriteMessage(websocket.TextMessage, frame)
	time.Sleep(authGraceDelay)
	_ = c.Close()
}
