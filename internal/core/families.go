package core

import (
	"github.com/oklog/ulid/v2"
)

// Path constructors for the path families this subsystem owns. All writer
// components go through these; nothing builds store paths ad hoc.

func ProfilePath(uid string) string {
	return JoinPath("userInfo", uid)
}

func FollowingPath(uid, target string) string {
	return JoinPath("follows", uid, "following", target)
}

func FollowersPath(uid, follower string) string {
	return JoinPath("follows", uid, "followers", follower)
}

func ChatListPath(uid, otherUID string) string {
	return JoinPath("chatlist", uid, otherUID)
}

func MessagePath(roomID, pushID string) string {
	return JoinPath("messages", roomID, pushID)
}

func PostPath(postID string) string {
	return JoinPath("posts", postID)
}

func CommentPath(postID, commentID string) string {
	return JoinPath("comments", postID, commentID)
}

func LikesPath(postID string) string {
	return JoinPath("likes", postID)
}

func LikeMarkerPath(postID, userID string) string {
	return JoinPath("likes", postID, userID)
}

// NewPushID returns an opaque, lexically time-ordered id for push-created
// documents (messages, posts, comments, chat rooms).
func NewPushID() string {
	return ulid.Make().String()
}
