package scrape

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/record"
)

// fakeChannel scripts one channel's history. After yielding failAfter posts
// (when failAfter >= 0) the history call returns err.
type fakeChannel struct {
	posts     []Post
	failAfter int
	err       error
}

type fakeClient struct {
	mu          sync.Mutex
	channels    map[string]fakeChannel
	failMedia   map[int64]bool
	visited     []string
	downloadLog []int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{channels: map[string]fakeChannel{}, failMedia: map[int64]bool{}}
}

func (f *fakeClient) add(channel string, ch fakeChannel) {
	f.channels[channel] = ch
}

func (f *fakeClient) History(ctx context.Context, channel string, limit int, fn func(Post) error) error {
	f.mu.Lock()
	f.visited = append(f.visited, channel)
	ch, ok := f.channels[channel]
	f.mu.Unlock()
	if !ok {
		return errors.New("channel not found")
	}
	for i, p := range ch.posts {
		if ch.err != nil && i == ch.failAfter {
			return ch.err
		}
		if i >= limit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	if ch.err != nil && ch.failAfter >= len(ch.posts) {
		return ch.err
	}
	return nil
}

func (f *fakeClient) Download(_ context.Context, post Post, basePath string) (string, error) {
	f.mu.Lock()
	f.downloadLog = append(f.downloadLog, post.Message.ID)
	fail := f.failMedia[post.Message.ID]
	f.mu.Unlock()
	if fail {
		return "", errors.New("file reference expired")
	}
	path := basePath + ".jpg"
	if err := os.WriteFile(path, []byte("jpeg"), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
}

func (p *recordingPauser) total() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	var sum time.Duration
	for _, d := range p.delays {
		sum += d
	}
	return sum
}

type fakeMirror struct {
	runs []MirroredRun
	err  error
}

func (m *fakeMirror) MirrorRun(_ context.Context, run MirroredRun) error {
	m.runs = append(m.runs, run)
	return m.err
}

type staticIDs struct{}

func (staticIDs) NewID() (string, error) { return "run-1", nil }

func textPost(id int64, text string) Post {
	return Post{Message: record.Message{
		ID:   id,
		Text: text,
		Payload: record.Mapping{
			"_":       record.String("Message"),
			"id":      record.Int(id),
			"message": record.String(text),
			"date":    record.Time(time.Date(2024, 6, 1, 12, 0, int(id%60), 0, time.UTC)),
			"peer_id": record.Mapping{"_": record.String("PeerChannel"), "channel_id": record.Int(555)},
		},
	}}
}

func photoPost(id int64) Post {
	p := textPost(id, "")
	p.Message.HasMedia = true
	p.Message.Payload["media"] = record.Mapping{"_": record.String("MessageMediaPhoto")}
	p.Media = struct{ photo int64 }{photo: id}
	return p
}

func textPosts(start int64, n int) []Post {
	out := make([]Post, n)
	for i := range out {
		out[i] = textPost(start+int64(i), "post")
	}
	return out
}
