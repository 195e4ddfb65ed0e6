package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/katatrina/schoolhub-BE/internal/event"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/token"
	"github.com/rs/zerolog/log"
)

const (
	defaultStreamPingInterval = 25 * time.Second
	streamWriteTimeout        = 10 * time.Second
)

// streamNotifications upgrades to a websocket and pushes every notification
// the caller may view. The access token comes from the Authorization header
// or the token query parameter. The stream is closed with 4401 when the
// token expires, so the client refreshes before reconnecting.
func (server *Server) streamNotifications(ctx *gin.Context) {
	accessToken, err := bearerToken(ctx.GetHeader(authorizationHeaderKey))
	if err != nil {
		accessToken = ctx.Query(accessTokenQueryKey)
	}
	if accessToken == "" {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errMissingAuthorization))
		return
	}

	payload, err := server.tokenMaker.VerifyToken(accessToken, token.TokenTypeAccess)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(err))
		return
	}

	conn, err := websocket.Accept(ctx.Writer, ctx.Request, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(server.config.AllowedOrigins),
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", payload.Subject).Msg("failed to accept websocket")
		return
	}
	defer conn.CloseNow()

	sub := event.NewSubscriber(payload.Subject, payload.Role, 0)
	rooms := notification.RoomsFor(notification.Role(payload.Role), payload.Subject)
	server.eventSender.Register(sub, rooms...)
	defer server.eventSender.Unregister(sub)

	// CloseRead keeps reading control frames (needed for Ping) and cancels
	// streamCtx once the peer goes away.
	streamCtx := conn.CloseRead(ctx.Request.Context())

	connectData, err := json.Marshal(event.ConnectData{
		ConnectionID: sub.ID,
		UserID:       payload.Subject,
		Rooms:        rooms,
	})
	if err != nil {
		log.Err(err).Msg("failed to marshal connect event")
		return
	}
	if err = writeFrame(streamCtx, conn, event.Frame{Event: event.TypeConnect, Data: connectData}); err != nil {
		return
	}

	expiry := time.NewTimer(time.Until(payload.ExpiresAt.Time))
	defer expiry.Stop()

	pingInterval := server.config.StreamPingInterval
	if pingInterval <= 0 {
		pingInterval = defaultStreamPingInterval
	}
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-streamCtx.Done():
			return

		case <-expiry.C:
			log.Info().Str("connection_id", sub.ID).Str("user_id", sub.UserID).Msg("closing stream, access token expired")
			conn.Close(event.StatusAccessTokenExpired, "access token expired")
			return

		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(streamCtx, streamWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Info().Err(err).Str("connection_id", sub.ID).Msg("stream ping failed")
				return
			}

		case ev := <-sub.Events:
			if err := writeFrame(streamCtx, conn, event.NewFrame(ev)); err != nil {
				log.Info().Err(err).Str("connection_id", sub.ID).Str("event_id", ev.ID).Msg("failed to write event")
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame event.Frame) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, frame)
}

// originPatterns turns ALLOWED_ORIGINS URLs into the host patterns Accept expects.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			patterns = append(patterns, origin)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
