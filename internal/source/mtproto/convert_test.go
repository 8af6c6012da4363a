package mtproto

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/record"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/scrape"
)

func TestMessagePostTextOnly(t *testing.T) {
	t.Parallel()

	m := &tg.Message{
		ID:      101,
		PeerID:  &tg.PeerChannel{ChannelID: 1500},
		Date:    1717243200,
		Message: "Amoxicillin 500mg በቅናሽ",
		Post:    true,
	}
	m.SetFromID(&tg.PeerUser{UserID: 42})
	m.SetViews(1200)

	post, ok := toPost(m)
	require.True(t, ok)
	assert.False(t, post.HasMedia())
	assert.Equal(t, int64(101), post.Message.ID)
	assert.Equal(t, int64(1500), post.Message.ChannelID)
	assert.Equal(t, "42", post.Message.FromID)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), post.Message.Date)

	out := record.Normalize(post.Message.Value()).(record.Mapping)
	assert.Equal(t, record.String("Message"), out["_"])
	assert.Equal(t, record.String("2024-06-01T12:00:00.000000Z"), out["date"])
	assert.Equal(t, record.Int(1200), out["views"])
	assert.Equal(t, record.Null, out["media"])
	assert.Equal(t, record.Mapping{"_": record.String("PeerChannel"), "channel_id": record.Int(1500)}, out["peer_id"])
	assert.Equal(t, record.Mapping{"_": record.String("PeerUser"), "user_id": record.Int(42)}, out["from_id"])

	f := record.Project(out)
	require.NotNil(t, f.FromID)
	assert.Equal(t, "42", *f.FromID)
}

func TestMessagePostPhoto(t *testing.T) {
	t.Parallel()

	m := &tg.Message{ID: 7, PeerID: &tg.PeerChannel{ChannelID: 1}, Date: 1}
	m.SetMedia(&tg.MessageMediaPhoto{Photo: &tg.Photo{
		ID:            99,
		AccessHash:    5,
		FileReference: []byte{1, 2},
		Date:          1,
		DCID:          4,
		Sizes: []tg.PhotoSizeClass{
			&tg.PhotoStrippedSize{Type: "i"},
			&tg.PhotoSize{Type: "m", W: 320, H: 240},
			&tg.PhotoSizeProgressive{Type: "y", W: 1280, H: 960},
			&tg.PhotoSize{Type: "x", W: 800, H: 600},
		},
	}})

	post, ok := toPost(m)
	require.True(t, ok)
	require.True(t, post.HasMedia())
	assert.True(t, post.Message.HasMedia)

	h, ok := post.Media.(mediaHandle)
	require.True(t, ok)
	assert.Equal(t, ".jpg", h.ext)
	loc, ok := h.location.(*tg.InputPhotoFileLocation)
	require.True(t, ok)
	assert.Equal(t, int64(99), loc.ID)
	assert.Equal(t, "y", loc.ThumbSize)

	media := post.Message.Payload["media"].(record.Mapping)
	assert.Equal(t, record.String("MessageMediaPhoto"), media["_"])
}

func TestMessagePostDocument(t *testing.T) {
	t.Parallel()

	m := &tg.Message{ID: 8, PeerID: &tg.PeerChannel{ChannelID: 1}, Date: 1}
	m.SetMedia(&tg.MessageMediaDocument{Document: &tg.Document{ID: 3, MimeType: "image/png", Size: 2048}})

	post, ok := toPost(m)
	require.True(t, ok)
	h, ok := post.Media.(mediaHandle)
	require.True(t, ok)
	assert.Equal(t, ".png", h.ext)
	_, isDoc := h.location.(*tg.InputDocumentFileLocation)
	assert.True(t, isDoc)
}

func TestMessagePostWebPageHasNoDownload(t *testing.T) {
	t.Parallel()

	m := &tg.Message{ID: 9, PeerID: &tg.PeerChannel{ChannelID: 1}, Date: 1}
	m.SetMedia(&tg.MessageMediaWebPage{Webpage: &tg.WebPage{URL: "https://example.com"}})

	post, ok := toPost(m)
	require.True(t, ok)
	assert.False(t, post.HasMedia())
	assert.True(t, post.Message.HasMedia)
	media := post.Message.Payload["media"].(record.Mapping)
	assert.Equal(t, record.String("https://example.com"), media["url"])
}

func TestServicePost(t *testing.T) {
	t.Parallel()

	post, ok := toPost(&tg.MessageService{
		ID:     2,
		PeerID: &tg.PeerChannel{ChannelID: 1},
		Date:   1,
		Action: &tg.MessageActionChannelCreate{Title: "x"},
	})
	require.True(t, ok)
	assert.Equal(t, record.String("MessageService"), post.Message.Payload["_"])
	assert.False(t, post.HasMedia())
}

func TestTranslateFloodWait(t *testing.T) {
	t.Parallel()

	err := translate(fmt.Errorf("history: %w", tgerr.New(420, "FLOOD_WAIT_17")))
	rl, ok := scrape.AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, 17*time.Second, rl.Wait)

	plain := errors.New("CHANNEL_PRIVATE")
	assert.Equal(t, plain, translate(plain))
	assert.NoError(t, translate(nil))
}

func TestExtensionFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".jpg", extensionFor("image/jpeg"))
	assert.Equal(t, "", extensionFor(""))
	assert.Equal(t, "", extensionFor("application/x-unknown-thing"))
}

func TestReaderPrompt(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	prompt := ReaderPrompt(strings.NewReader(" 12345 \n"), &out)
	code, err := prompt(context.Background(), &tg.AuthSentCode{})
	require.NoError(t, err)
	assert.Equal(t, "12345", code)
	assert.Contains(t, out.String(), "login code")

	_, err = ReaderPrompt(strings.NewReader(""), &out)(context.Background(), nil)
	require.Error(t, err)
}

func TestNewValidatesCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Config{AppHash: "h", SessionFile: "s"}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{AppID: 1, AppHash: "h"}, nil, nil)
	require.Error(t, err)
	src, err := New(Config{AppID: 1, AppHash: "h", SessionFile: "s", Phone: "+251"}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, src.authenticator())
}
