package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"graphsync/internal/core"
)

// conn is one UI consumer's connection. The subscriptions it holds are
// scoped to its lifetime: closing the socket tears all of them down, the
// same way an unmounting surface must release its listeners.
type conn struct {
	srv *Server
	ws  *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	subs      map[string]core.Unsubscribe
	snapshots map[string]core.Snapshot
	closed    bool
}

type clientFrame struct {
	Op   string `json:"op"`
	Path string `json:"path,omitempty"`

	Actor     string `json:"actor,omitempty"`
	Target    string `json:"target,omitempty"`
	Text      string `json:"text,omitempty"`
	MsgType   string `json:"msgType,omitempty"`
	PostID    string `json:"postId,omitempty"`
	CommentID string `json:"commentId,omitempty"`
	SectionID string `json:"sectionId,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photoUrl,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Email     string `json:"email,omitempty"`
}

type serverFrame struct {
	Type    string                     `json:"type"`
	Op      string                     `json:"op,omitempty"`
	Path    string                     `json:"path,omitempty"`
	Docs    map[string]json.RawMessage `json:"docs,omitempty"`
	Result  any                        `json:"result,omitempty"`
	Error   string                     `json:"error,omitempty"`
	Partial bool                       `json:"partial,omitempty"`
}

func newConn(srv *Server, ws *websocket.Conn) *conn {
	return &conn{
		srv:       srv,
		ws:        ws,
		subs:      map[string]core.Unsubscribe{},
		snapshots: map[string]core.Snapshot{},
	}
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.srv.Logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("", fmt.Errorf("malformed frame: %w", err))
			continue
		}

		if err := c.handle(ctx, frame); err != nil {
			framesTotal.WithLabelValues(frame.Op, "error").Inc()
			c.sendError(frame.Op, err)
			continue
		}
		framesTotal.WithLabelValues(frame.Op, "ok").Inc()
	}
}

func (c *conn) handle(ctx context.Context, f clientFrame) error {
	switch f.Op {
	case "subscribe":
		return c.subscribe(ctx, f.Path)
	case "unsubscribe":
		c.unsubscribe(f.Path)
		return nil

	case "follow":
		return c.ack(f.Op, nil, c.srv.Relation.Follow(ctx, f.Actor, f.Target))
	case "unfollow":
		return c.ack(f.Op, nil, c.srv.Relation.Unfollow(ctx, f.Actor, f.Target))

	case "send_message":
		id, err := c.srv.Chat.SendMessage(ctx, f.Actor, f.Target, f.Text, f.MsgType)
		return c.ack(f.Op, map[string]string{"id": id}, err)
	case "activate":
		return c.ack(f.Op, nil, c.srv.Chat.Activate(ctx, f.Actor, f.Target))
	case "deactivate":
		return c.ack(f.Op, nil, c.srv.Chat.Deactivate(ctx, f.Actor, f.Target))

	case "toggle_post_like":
		return c.togglePostLike(ctx, f)
	case "toggle_comment_like":
		return c.toggleCommentLike(ctx, f)

	case "add_comment":
		id, err := c.srv.Posts.AddComment(ctx, f.PostID, f.Actor, f.Text)
		return c.ack(f.Op, map[string]string{"id": id}, err)
	case "create_post":
		id, err := c.srv.Posts.Create(ctx, core.Post{
			UID:       f.Actor,
			SectionID: f.SectionID,
			Content:   f.Text,
			Status:    core.PostStatusDraft,
		})
		return c.ack(f.Op, map[string]string{"id": id}, err)
	case "upsert_profile":
		return c.ack(f.Op, nil, c.srv.Profiles.Upsert(ctx, core.Profile{
			UID:      f.Actor,
			Username: f.Username,
			PhotoURL: f.PhotoURL,
			Bio:      f.Bio,
			Email:    f.Email,
		}))

	default:
		return fmt.Errorf("unknown op %q", f.Op)
	}
}

// togglePostLike decides from the snapshot this connection already holds
// for the post's like set. A surface that displays a like button is
// subscribed to what it displays, so requiring the subscription keeps the
// toggle on its read-your-last-observed-value contract.
func (c *conn) togglePostLike(ctx context.Context, f clientFrame) error {
	snap, ok := c.snapshot(core.LikesPath(f.PostID))
	if !ok {
		return fmt.Errorf("toggle_post_like requires a subscription to %s", core.LikesPath(f.PostID))
	}

	res, err := c.srv.Counter.TogglePostLike(ctx, snap, f.PostID, f.Actor)
	return c.ack(f.Op, res, err)
}

func (c *conn) toggleCommentLike(ctx context.Context, f clientFrame) error {
	commentsPath := core.JoinPath("comments", f.PostID)
	snap, ok := c.snapshot(commentsPath)
	if !ok {
		return fmt.Errorf("toggle_comment_like requires a subscription to %s", commentsPath)
	}

	raw, ok := snap.Docs[f.CommentID]
	if !ok {
		return fmt.Errorf("%w: comment %s", core.ErrNotFound, f.CommentID)
	}
	observed, err := core.Decode[core.Comment](raw)
	if err != nil {
		return err
	}

	res, err := c.srv.Counter.ToggleCommentLike(ctx, observed, f.PostID, f.CommentID, f.Actor)
	return c.ack(f.Op, res, err)
}

func (c *conn) subscribe(ctx context.Context, path string) error {
	c.mu.Lock()
	if _, ok := c.subs[path]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	unsubscribe, err := c.srv.Subs.Subscribe(ctx, path, func(snap core.Snapshot) {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.snapshots[path] = snap
		c.mu.Unlock()

		c.send(serverFrame{Type: "snapshot", Path: snap.Path, Docs: snap.Docs})
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return errors.New("connection closed")
	}
	c.subs[path] = unsubscribe
	c.mu.Unlock()
	return nil
}

func (c *conn) unsubscribe(path string) {
	c.mu.Lock()
	unsub, ok := c.subs[path]
	delete(c.subs, path)
	delete(c.snapshots, path)
	c.mu.Unlock()

	if ok {
		unsub()
	}
}

func (c *conn) snapshot(path string) (core.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[path]
	return snap, ok
}

// close tears down every subscription the connection holds. It is
// unconditional: a subscription must never outlive its consumer.
func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = map[string]core.Unsubscribe{}
	c.snapshots = map[string]core.Snapshot{}
	c.mu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
	c.ws.Close() //nolint:errcheck
}

func (c *conn) ack(op string, result any, err error) error {
	if err != nil {
		var partial *core.PartialWriteError
		if errors.As(err, &partial) {
			// Surface partial failure distinctly: the write landed on one
			// side and the copies are divergent until a future write.
			c.send(serverFrame{Type: "error", Op: op, Error: err.Error(), Partial: true})
			return nil
		}
		return err
	}

	c.send(serverFrame{Type: "ack", Op: op, Result: result})
	return nil
}

func (c *conn) sendError(op string, err error) {
	c.send(serverFrame{Type: "error", Op: op, Error: err.Error()})
}

// send serializes writes: snapshot fan-out and acks arrive from different
// goroutines and gorilla allows one concurrent writer.
func (c *conn) send(frame serverFrame) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	if err := c.ws.WriteJSON(frame); err != nil {
		c.srv.Logger.Debug("websocket write failed", "error", err)
	}
}
