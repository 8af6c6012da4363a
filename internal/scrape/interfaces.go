package scrape

import (
	"context"
	"time"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/record"
)

// Client is an open session against the messaging platform.
type Client interface {
	// History yields at most limit posts of channel in platform order
	// (newest first). Returning an error from fn stops iteration.
	History(ctx context.Context, channel string, limit int, fn func(Post) error) error
	// Download writes the post's media to basePath, appending an extension
	// when the media kind determines one, and returns the final path.
	Download(ctx context.Context, post Post, basePath string) (string, error)
}

// Source owns the session lifecycle: Open connects, authenticates, runs fn
// and disconnects.
type Source interface {
	Open(ctx context.Context, fn func(ctx context.Context, c Client) error) error
}

// Post is a message handle as yielded by a Client.
type Post struct {
	Message record.Message
	// Media is the client-specific handle used by Download; nil when the
	// post has no attachment.
	Media any
}

// HasMedia reports whether the post carries a downloadable attachment.
func (p Post) HasMedia() bool {
	return p.Media != nil
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Pauser sleeps for delay or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Mirror copies a finished Scrape Run to secondary storage.
type Mirror interface {
	MirrorRun(ctx context.Context, run MirroredRun) error
}

// MirroredRun lists the files produced by one Scrape Run.
type MirroredRun struct {
	Date       string
	Channel    string
	File       string
	MediaFiles []string
}

// Publisher announces finished scrape runs.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// FileHasher digests a written batch file.
type FileHasher interface {
	HashFile(path string) (string, error)
}
