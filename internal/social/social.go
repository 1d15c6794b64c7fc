package social

import "context"

// Client is the social-platform interaction capability (posting replies to
// mentions). Both calls may fail transiently; callers wrap them in a retry.
type Client interface {
	Reply(ctx context.Context, postID, text string) error
	ReplyWithMedia(ctx context.Context, postID, text, mediaRef string) error
}
