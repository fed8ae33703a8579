package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// One record type per path family. Every document crossing the store
// boundary is decoded through Decode so malformed or partially written
// documents fail fast instead of propagating zero values into view logic.

type Validator interface {
	Validate() error
}

// Profile lives at userInfo/{uid}.
type Profile struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	PhotoURL string `json:"photoUrl,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (p Profile) Validate() error {
	if p.UID == "" {
		return fmt.Errorf("%w: profile without uid", ErrMalformedDoc)
	}
	if p.Username == "" {
		return fmt.Errorf("%w: profile %s without username", ErrMalformedDoc, p.UID)
	}
	return nil
}

// FollowMarker lives at follows/{uid}/following/{target} and
// follows/{uid}/followers/{follower}. The marker is its own presence; the
// boolean exists so a half-written document is distinguishable from an
// absent one.
type FollowMarker struct {
	Active bool      `json:"active"`
	Since  time.Time `json:"since"`
}

func (m FollowMarker) Validate() error {
	if !m.Active {
		return fmt.Errorf("%w: inactive follow marker", ErrMalformedDoc)
	}
	return nil
}

// ChatListEntry lives at chatlist/{uid}/{otherUid}. Each side of a pair
// holds its own copy; roomId must agree across the two copies, unreadCount
// and userActive are independent per copy.
type ChatListEntry struct {
	LastMsg     string    `json:"lastMsg"`
	LastMsgTime time.Time `json:"lastMsgTime"`
	UnreadCount int       `json:"unreadCount"`
	UserActive  bool      `json:"userActive"`
	RoomID      string    `json:"roomId"`
}

func (e ChatListEntry) Validate() error {
	if e.RoomID == "" {
		return fmt.Errorf("%w: chat list entry without roomId", ErrMalformedDoc)
	}
	if e.UnreadCount < 0 {
		return fmt.Errorf("%w: negative unreadCount", ErrMalformedDoc)
	}
	return nil
}

// Message lives at messages/{roomId}/{pushId}; immutable once written.
type Message struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Message  string    `json:"message"`
	SendTime time.Time `json:"sendTime"`
	MsgType  string    `json:"msgType"`
}

func (m Message) Validate() error {
	if m.From == "" || m.To == "" {
		return fmt.Errorf("%w: message without participants", ErrMalformedDoc)
	}
	if m.MsgType == "" {
		return fmt.Errorf("%w: message without msgType", ErrMalformedDoc)
	}
	return nil
}

const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
)

// Post lives at posts/{postId}.
type Post struct {
	UID          string    `json:"uid"`
	SectionID    string    `json:"sectionId"`
	Content      string    `json:"content"`
	ImageURI     string    `json:"imageUri,omitempty"`
	PublicStatus bool      `json:"publicStatus"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (p Post) Validate() error {
	if p.UID == "" {
		return fmt.Errorf("%w: post without owner", ErrMalformedDoc)
	}
	if p.Status != PostStatusDraft && p.Status != PostStatusPublished {
		return fmt.Errorf("%w: unknown post status %q", ErrMalformedDoc, p.Status)
	}
	return nil
}

// Comment lives at comments/{postId}/{commentId}. LikeCount is a redundant
// scalar that every writer must keep equal to len(LikedBy); under
// concurrent toggles it can drift, see the counter package.
type Comment struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	LikeCount int       `json:"likeCount"`
	LikedBy   []string  `json:"likedBy"`
}

func (c Comment) Validate() error {
	if c.PostID == "" || c.UserID == "" {
		return fmt.Errorf("%w: comment without postId or userId", ErrMalformedDoc)
	}
	if c.LikeCount != len(c.LikedBy) {
		return fmt.Errorf("%w: comment likeCount %d != len(likedBy) %d", ErrMalformedDoc, c.LikeCount, len(c.LikedBy))
	}
	return nil
}

// LikeMarker lives at likes/{postId}/{userId}. The like count of a post is
// the cardinality of this set; no scalar is stored.
type LikeMarker struct {
	LikedAt time.Time `json:"likedAt"`
}

func (LikeMarker) Validate() error { return nil }

// Decode unmarshals a raw document and validates it.
func Decode[T Validator](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedDoc, err)
	}
	if err := v.Validate(); err != nil {
		return v, err
	}
	return v, nil
}

// Encode is the write-side counterpart of Decode: documents are validated
// before they reach the store, never after.
func Encode[T Validator](v T) (json.RawMessage, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
