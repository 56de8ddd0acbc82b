package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"veinlocate.ai/internal/protocol"
	"veinlocate.ai/internal/sim/command"
)

// Server answers LOCATE messages over a WebSocket, one reply per message.
type Server struct {
	env     *command.Env
	queries command.QueryLogger
	log     *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(env *command.Env, queries command.QueryLogger, logger *log.Logger) *Server {
	return &Server{
		env:     env,
		queries: queries,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(64 * 1024)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			b, err := json.Marshal(s.handle(msg))
			if err != nil {
				s.log.Printf("ws: marshal reply: %v", err)
				b, _ = json.Marshal(protocol.NewError("", protocol.ErrInternal, "encode reply"))
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

func (s *Server) handle(msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "invalid json")
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "bad protocol_version")
	}
	switch base.Type {
	case protocol.TypeLocate:
	case protocol.TypeVeins:
		return command.VeinsList(s.env.Veins)
	default:
		return protocol.NewError("", protocol.ErrProtoBadRequest, "unsupported type "+base.Type)
	}

	var req protocol.LocateReq
	if err := json.Unmarshal(msg, &req); err != nil {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "invalid LOCATE")
	}
	origin, creq, err := command.FromWire(req)
	if err != nil {
		return protocol.NewError(req.RequestID, protocol.ErrBadRequest, err.Error())
	}
	res := s.env.Exec(origin, creq)
	rec := command.NewRecord(req.RequestID, "ws", res, time.Now())
	if s.queries != nil {
		if err := s.queries.WriteQuery(rec); err != nil {
			s.log.Printf("ws: record query %s: %v", rec.ID, err)
		}
	}
	resp, errMsg := res.Wire(rec.ID)
	if errMsg != nil {
		return errMsg
	}
	return resp
}
