package models

import "time"

// Identity represents a pseudo-anonymous viewer of the gallery
type Identity struct {
	ID        string    `json:"id"`
	Token     string    `json:"token,omitempty"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Reaction represents one user's emoji on one image.
// At most one exists per (ImageID, UserID, Emoji).
type Reaction struct {
	ID        string `json:"id"`
	ImageID   string `json:"imageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// RecordID returns the record id
func (r Reaction) RecordID() string { return r.ID }

// Field returns the value of an indexed field
func (r Reaction) Field(name string) (string, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "imageId":
		return r.ImageID, true
	case "userId":
		return r.UserID, true
	case "emoji":
		return r.Emoji, true
	}
	return "", false
}

// Comment represents a short text message attached to an image.
// UserName and UserAvatar are captured when the comment is posted.
type Comment struct {
	ID         string `json:"id"`
	ImageID    string `json:"imageId"`
	Text       string `json:"text"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar"`
	Timestamp  int64  `json:"timestamp"`
}

// RecordID returns the record id
func (c Comment) RecordID() string { return c.ID }

// Field returns the value of an indexed field
func (c Comment) Field(name string) (string, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "imageId":
		return c.ImageID, true
	case "userId":
		return c.UserID, true
	}
	return "", false
}

// FeedItemType discriminates feed entries
type FeedItemType string

const (
	FeedItemReaction FeedItemType = "reaction"
	FeedItemComment  FeedItemType = "comment"
)

// FeedItem is a reaction or a comment tagged with its type. Exactly one of
// Reaction and Comment is set.
type FeedItem struct {
	Type     FeedItemType `json:"type"`
	Reaction *Reaction    `json:"reaction,omitempty"`
	Comment  *Comment     `json:"comment,omitempty"`
}

// ID returns the id of the wrapped record
func (f FeedItem) ID() string {
	if f.Reaction != nil {
		return f.Reaction.ID
	}
	if f.Comment != nil {
		return f.Comment.ID
	}
	return ""
}

// Timestamp returns the timestamp of the wrapped record
func (f FeedItem) Timestamp() int64 {
	if f.Reaction != nil {
		return f.Reaction.Timestamp
	}
	if f.Comment != nil {
		return f.Comment.Timestamp
	}
	return 0
}

// ImageID returns the image the wrapped record belongs to
func (f FeedItem) ImageID() string {
	if f.Reaction != nil {
		return f.Reaction.ImageID
	}
	if f.Comment != nil {
		return f.Comment.ImageID
	}
	return ""
}

// ReactionGroup is the displayed count for one emoji on one image
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
	Mine  bool     `json:"mine"`
}

// Author is the photographer credited for a photo
type Author struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Photo represents catalog metadata for one image
type Photo struct {
	ID              string  `json:"id"`
	ImageURLRegular string  `json:"imageUrlRegular"`
	ImageURLSmall   string  `json:"imageUrlSmall"`
	AltDescription  *string `json:"altDescription,omitempty"`
	Author          Author  `json:"author"`
}
