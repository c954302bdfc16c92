package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"pixelsync-backend/internal/catalog"
	"pixelsync-backend/internal/live"
	"pixelsync-backend/internal/middleware"
	"pixelsync-backend/internal/models"
	"pixelsync-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const maxMessageBytes = 16 << 10

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub             *services.WSHub
	reactionService *services.ReactionService
	commentService  *services.CommentService
	feedService     *services.FeedService
	catalog         catalog.Catalog
	perPage         int
	limiter         *middleware.WriteLimiter
}

// NewWebSocketHandler creates a new WebSocket handler. limiter may be nil.
func NewWebSocketHandler(
	hub *services.WSHub,
	reactionService *services.ReactionService,
	commentService *services.CommentService,
	feedService *services.FeedService,
	c catalog.Catalog,
	perPage int,
	limiter *middleware.WriteLimiter,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:             hub,
		reactionService: reactionService,
		commentService:  commentService,
		feedService:     feedService,
		catalog:         c,
		perPage:         perPage,
		limiter:         limiter,
	}
}

// wsSubscription is one live query opened by the client
type wsSubscription struct {
	close     func()
	imageID   string
	reactions *live.Subscription[models.Reaction]
}

// viewSession is the per-connection state: open subscriptions and the photo selection
type viewSession struct {
	*services.WSSession

	h        *WebSocketHandler
	ctx      context.Context
	resolver *services.Resolver
	subs     map[string]*wsSubscription
}

// HandleWebSocket handles GET /ws. The identity middleware has already run.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		respondError(w, "identity required", http.StatusUnauthorized)
		return
	}

	// Cookies issued by the identity middleware must ride on the upgrade response.
	header := http.Header{}
	for _, c := range w.Header().Values("Set-Cookie") {
		header.Add("Set-Cookie", c)
	}

	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &viewSession{
		WSSession: services.NewWSSession(identity.ID, conn),
		h:         h,
		ctx:       ctx,
		resolver:  services.NewResolver(h.catalog),
		subs:      make(map[string]*wsSubscription),
	}
	defer session.Close()

	h.hub.Register(session.WSSession)
	defer h.hub.Unregister(session.WSSession)

	go session.forwardSelections()
	defer session.resolver.Close()

	if err := session.Send(services.WSMessage{Type: "identity", Data: identity}); err != nil {
		log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to send identity")
		return
	}

	log.Info().Str("user_id", identity.ID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", identity.ID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("user_id", identity.ID).Msg("Failed to parse WebSocket message")
			session.SendError("Invalid message format")
			continue
		}

		if err := session.handleMessage(msg); err != nil {
			if statusFor(err) >= http.StatusInternalServerError {
				log.Error().Err(err).Str("user_id", identity.ID).Str("type", msg.Type).Msg("Failed to handle message")
			}
			session.SendError(err.Error())
		}
	}

	for id := range session.subs {
		session.unsubscribe(id)
	}
}

var (
	errUnknownMessage    = errors.New("unknown message type")
	errUnknownCollection = errors.New("collection must be reactions, comments or feed")
	errMissingSubID      = errors.New("sub_id is required")
	errRateLimited       = errors.New("too many writes, slow down")
)

// handleMessage processes incoming WebSocket messages
func (s *viewSession) handleMessage(msg services.WSMessage) error {
	switch msg.Type {
	case "subscribe":
		return s.subscribe(msg)
	case "unsubscribe":
		s.unsubscribe(msg.SubID)
		return nil
	case "toggle_reaction":
		return s.toggleReaction(msg)
	case "post_comment":
		return s.postComment(msg)
	case "delete_comment":
		return s.deleteComment(msg)
	case "load_page":
		return s.loadPage(msg)
	case "open_photo":
		s.resolver.Open(s.ctx, msg.PhotoID)
		return nil
	case "close_photo":
		s.resolver.Clear()
		return nil
	default:
		return errUnknownMessage
	}
}

func (s *viewSession) subscribe(msg services.WSMessage) error {
	if msg.SubID == "" {
		return errMissingSubID
	}

	var sub *wsSubscription
	switch msg.Collection {
	case "reactions":
		if msg.ImageID == "" {
			return services.ErrMissingImage
		}
		rs := s.h.reactionService.Subscribe(s.ctx, msg.ImageID)
		sub = &wsSubscription{close: rs.Close, imageID: msg.ImageID, reactions: rs}
		go s.forwardReactions(msg.SubID, rs)
	case "comments":
		if msg.ImageID == "" {
			return services.ErrMissingImage
		}
		cs := s.h.commentService.Subscribe(s.ctx, msg.ImageID)
		sub = &wsSubscription{close: cs.Close, imageID: msg.ImageID}
		go s.forwardComments(msg.SubID, cs)
	case "feed":
		agg := s.h.feedService.Subscribe(s.ctx, services.FeedScope{ImageID: msg.ImageID})
		sub = &wsSubscription{close: agg.Close, imageID: msg.ImageID}
		go s.forwardFeed(msg.SubID, agg)
	default:
		return errUnknownCollection
	}

	s.unsubscribe(msg.SubID)
	s.subs[msg.SubID] = sub
	return nil
}

func (s *viewSession) unsubscribe(subID string) {
	if sub, ok := s.subs[subID]; ok {
		sub.close()
		delete(s.subs, subID)
	}
}

// reactionView returns the materialized reactions of an open subscription on
// imageID, falling back to a one-shot read.
func (s *viewSession) reactionView(imageID string) services.ReactionView {
	for _, sub := range s.subs {
		if sub.reactions != nil && sub.imageID == imageID {
			return sub.reactions
		}
	}
	return s.h.reactionService.Snapshot(s.ctx, imageID)
}

func (s *viewSession) allowWrite() error {
	if s.h.limiter != nil && !s.h.limiter.Allow(s.UserID) {
		return errRateLimited
	}
	return nil
}

func (s *viewSession) toggleReaction(msg services.WSMessage) error {
	if err := s.allowWrite(); err != nil {
		return err
	}
	_, err := s.h.reactionService.Toggle(s.ctx, s.reactionView(msg.ImageID), msg.ImageID, s.UserID, msg.Emoji)
	return err
}

func (s *viewSession) postComment(msg services.WSMessage) error {
	if err := s.allowWrite(); err != nil {
		return err
	}
	_, err := s.h.commentService.Post(s.ctx, msg.ImageID, s.UserID, msg.Text)
	return err
}

func (s *viewSession) deleteComment(msg services.WSMessage) error {
	if err := s.allowWrite(); err != nil {
		return err
	}
	return s.h.commentService.Delete(s.ctx, msg.CommentID, s.UserID)
}

func (s *viewSession) loadPage(msg services.WSMessage) error {
	params := catalog.ListParams{
		Page:    msg.Page,
		PerPage: msg.PerPage,
		OrderBy: msg.OrderBy,
	}.Normalize(s.h.perPage)

	page, err := s.h.catalog.List(s.ctx, params)
	if err != nil {
		log.Error().Err(err).Int("page", params.Page).Msg("Failed to list photos")
		return errors.New("photo catalog unavailable")
	}

	s.resolver.SetPage(page.Photos)
	return s.Send(services.WSMessage{Type: "photos", Page: page.Page, PerPage: page.PerPage, Data: page.Photos})
}

func (s *viewSession) forwardReactions(subID string, sub *live.Subscription[models.Reaction]) {
	for snap := range sub.Updates() {
		s.sendSnapshot(subID, "reactions", snap.IsLoading, snap.Err, map[string]interface{}{
			"reactions": services.DedupReactions(snap.Data),
			"groups":    services.GroupReactions(snap.Data, s.UserID),
		})
	}
}

func (s *viewSession) forwardComments(subID string, sub *live.Subscription[models.Comment]) {
	for snap := range sub.Updates() {
		s.sendSnapshot(subID, "comments", snap.IsLoading, snap.Err, services.SortThread(snap.Data))
	}
}

func (s *viewSession) forwardFeed(subID string, agg *services.FeedAggregator) {
	for snap := range agg.Updates() {
		s.sendSnapshot(subID, "feed", snap.IsLoading, snap.Err, snap.Items)
	}
}

func (s *viewSession) sendSnapshot(subID, collection string, isLoading bool, err error, data interface{}) {
	msg := services.WSMessage{
		Type:       "snapshot",
		SubID:      subID,
		Collection: collection,
		IsLoading:  &isLoading,
		Data:       data,
	}
	if err != nil {
		msg.Message = err.Error()
	}
	if sendErr := s.Send(msg); sendErr != nil {
		log.Debug().Err(sendErr).Str("user_id", s.UserID).Str("sub_id", subID).Msg("Dropped snapshot")
	}
}

func (s *viewSession) forwardSelections() {
	for sel := range s.resolver.Updates() {
		loading := sel.Loading
		msg := services.WSMessage{
			Type:      "selection",
			PhotoID:   sel.PhotoID,
			IsLoading: &loading,
		}
		if sel.Photo != nil {
			msg.Data = sel.Photo
		}
		if sel.Err != nil {
			msg.Message = sel.Err.Error()
		}
		if err := s.Send(msg); err != nil {
			log.Debug().Err(err).Str("user_id", s.UserID).Msg("Dropped selection")
		}
	}
}
