package mtproto

import (
	"mime"
	"strconv"
	"time"

	"github.com/gotd/td/tg"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/record"
	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/scrape"
)

// mediaHandle is the Post.Media payload for downloadable attachments.
type mediaHandle struct {
	location tg.InputFileLocationClass
	ext      string
}

func toPost(msg tg.NotEmptyMessage) (scrape.Post, bool) {
	switch m := msg.(type) {
	case *tg.Message:
		return messagePost(m), true
	case *tg.MessageService:
		return servicePost(m), true
	default:
		return scrape.Post{}, false
	}
}

func messagePost(m *tg.Message) scrape.Post {
	payload := record.Mapping{
		"_":           record.String("Message"),
		"id":          record.Int(int64(m.ID)),
		"peer_id":     peerValue(m.PeerID),
		"date":        unixTime(m.Date),
		"message":     record.String(m.Message),
		"out":         record.Bool(m.Out),
		"mentioned":   record.Bool(m.Mentioned),
		"silent":      record.Bool(m.Silent),
		"post":        record.Bool(m.Post),
		"pinned":      record.Bool(m.Pinned),
		"noforwards":  record.Bool(m.Noforwards),
		"from_id":     record.Null,
		"media":       record.Null,
		"views":       record.Null,
		"forwards":    record.Null,
		"edit_date":   record.Null,
		"post_author": record.Null,
		"grouped_id":  record.Null,
		"reply_to":    record.Null,
	}
	msg := record.Message{
		ID:        int64(m.ID),
		ChannelID: channelID(m.PeerID),
		Text:      m.Message,
		Date:      time.Unix(int64(m.Date), 0).UTC(),
	}

	if from, ok := m.GetFromID(); ok {
		payload["from_id"] = peerValue(from)
		msg.FromID = peerString(from)
	}
	if v, ok := m.GetViews(); ok {
		payload["views"] = record.Int(int64(v))
	}
	if v, ok := m.GetForwards(); ok {
		payload["forwards"] = record.Int(int64(v))
	}
	if v, ok := m.GetEditDate(); ok {
		payload["edit_date"] = unixTime(v)
	}
	if v, ok := m.GetPostAuthor(); ok {
		payload["post_author"] = record.String(v)
	}
	if v, ok := m.GetGroupedID(); ok {
		payload["grouped_id"] = record.Int(v)
	}
	if r, ok := m.GetReplyTo(); ok {
		if h, ok := r.(*tg.MessageReplyHeader); ok {
			reply := record.Mapping{"_": record.String("MessageReplyHeader"), "reply_to_msg_id": record.Null}
			if id, ok := h.GetReplyToMsgID(); ok {
				reply["reply_to_msg_id"] = record.Int(int64(id))
			}
			payload["reply_to"] = reply
		}
	}

	post := scrape.Post{}
	if media, ok := m.GetMedia(); ok {
		value, handle := mediaValue(media)
		payload["media"] = value
		msg.HasMedia = true
		if handle != nil {
			post.Media = *handle
		}
	}
	msg.Payload = payload
	post.Message = msg
	return post
}

func servicePost(m *tg.MessageService) scrape.Post {
	payload := record.Mapping{
		"_":       record.String("MessageService"),
		"id":      record.Int(int64(m.ID)),
		"peer_id": peerValue(m.PeerID),
		"date":    unixTime(m.Date),
		"action":  record.Mapping{"_": record.String(m.Action.TypeName())},
		"from_id": record.Null,
	}
	msg := record.Message{
		ID:        int64(m.ID),
		ChannelID: channelID(m.PeerID),
		Date:      time.Unix(int64(m.Date), 0).UTC(),
	}
	if from, ok := m.GetFromID(); ok {
		payload["from_id"] = peerValue(from)
		msg.FromID = peerString(from)
	}
	msg.Payload = payload
	return scrape.Post{Message: msg}
}

func mediaValue(media tg.MessageMediaClass) (record.Value, *mediaHandle) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		out := record.Mapping{"_": record.String("MessageMediaPhoto"), "spoiler": record.Bool(m.Spoiler), "photo": record.Null}
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return out, nil
		}
		out["photo"] = record.Mapping{
			"_":     record.String("Photo"),
			"id":    record.Int(photo.ID),
			"date":  unixTime(photo.Date),
			"dc_id": record.Int(int64(photo.DCID)),
		}
		return out, &mediaHandle{
			location: &tg.InputPhotoFileLocation{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
				ThumbSize:     largestSize(photo.Sizes),
			},
			ext: ".jpg",
		}
	case *tg.MessageMediaDocument:
		out := record.Mapping{"_": record.String("MessageMediaDocument"), "spoiler": record.Bool(m.Spoiler), "document": record.Null}
		docClass, ok := m.GetDocument()
		if !ok {
			return out, nil
		}
		doc, ok := docClass.(*tg.Document)
		if !ok {
			return out, nil
		}
		out["document"] = record.Mapping{
			"_":         record.String("Document"),
			"id":        record.Int(doc.ID),
			"date":      unixTime(doc.Date),
			"mime_type": record.String(doc.MimeType),
			"size":      record.Int(doc.Size),
			"dc_id":     record.Int(int64(doc.DCID)),
		}
		return out, &mediaHandle{
			location: &tg.InputDocumentFileLocation{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			},
			ext: extensionFor(doc.MimeType),
		}
	case *tg.MessageMediaWebPage:
		out := record.Mapping{"_": record.String("MessageMediaWebPage"), "url": record.Null}
		if page, ok := m.Webpage.(*tg.WebPage); ok {
			out["url"] = record.String(page.URL)
		}
		return out, nil
	default:
		return record.Mapping{"_": record.String(media.TypeName())}, nil
	}
}

// largestSize picks the biggest downloadable thumbnail type.
func largestSize(sizes []tg.PhotoSizeClass) string {
	best, bestArea := "", -1
	for _, s := range sizes {
		var w, h int
		switch v := s.(type) {
		case *tg.PhotoSize:
			w, h = v.W, v.H
		case *tg.PhotoSizeProgressive:
			w, h = v.W, v.H
		case *tg.PhotoCachedSize:
			w, h = v.W, v.H
		default:
			continue
		}
		if w*h > bestArea {
			best, bestArea = s.GetType(), w*h
		}
	}
	if best == "" && len(sizes) > 0 {
		best = sizes[len(sizes)-1].GetType()
	}
	return best
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "":
		return ""
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

func peerValue(p tg.PeerClass) record.Value {
	switch v := p.(type) {
	case *tg.PeerUser:
		return record.Mapping{"_": record.String("PeerUser"), "user_id": record.Int(v.UserID)}
	case *tg.PeerChat:
		return record.Mapping{"_": record.String("PeerChat"), "chat_id": record.Int(v.ChatID)}
	case *tg.PeerChannel:
		return record.Mapping{"_": record.String("PeerChannel"), "channel_id": record.Int(v.ChannelID)}
	default:
		return record.Null
	}
}

func peerString(p tg.PeerClass) string {
	switch v := p.(type) {
	case *tg.PeerUser:
		return formatID(v.UserID)
	case *tg.PeerChat:
		return formatID(v.ChatID)
	case *tg.PeerChannel:
		return formatID(v.ChannelID)
	default:
		return ""
	}
}

func channelID(p tg.PeerClass) int64 {
	if v, ok := p.(*tg.PeerChannel); ok {
		return v.ChannelID
	}
	return 0
}

func unixTime(sec int) record.Temporal {
	return record.Time(time.Unix(int64(sec), 0).UTC())
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
