package transport

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrIgnoredEvent marks webhook payloads that carry no user message.
var ErrIgnoredEvent = errors.New("ignored event")

// Media is an attachment carried by an inbound message.
type Media struct {
	Kind     MediaKind
	MimeType string
	FileName string
	Data     []byte
}

// MediaKind distinguishes documents from images.
type MediaKind string

const (
	MediaDocument MediaKind = "document"
	MediaImage    MediaKind = "image"
)

// Message is an inbound chat message.
type Message struct {
	Sender   string
	ID       string
	FromMe   bool
	Text     string
	QuotedID string
	Media    *Media
}

// HasMedia reports whether the message carries an attachment with content.
func (m Message) HasMedia() bool {
	return m.Media != nil && len(m.Media.Data) > 0
}

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type contextInfo struct {
	StanzaID      string          `json:"stanzaId"`
	QuotedMessage json.RawMessage `json:"quotedMessage"`
}

type messageData struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
	} `json:"key"`
	MessageType string       `json:"messageType"`
	ContextInfo *contextInfo `json:"contextInfo"`
	Message     struct {
		Conversation        string `json:"conversation"`
		Base64              string `json:"base64"`
		ExtendedTextMessage *struct {
			Text        string       `json:"text"`
			ContextInfo *contextInfo `json:"contextInfo"`
		} `json:"extendedTextMessage"`
		DocumentMessage *struct {
			MimeType    string       `json:"mimetype"`
			FileName    string       `json:"fileName"`
			ContextInfo *contextInfo `json:"contextInfo"`
		} `json:"documentMessage"`
		ImageMessage *struct {
			MimeType    string       `json:"mimetype"`
			ContextInfo *contextInfo `json:"contextInfo"`
		} `json:"imageMessage"`
		MessageContextInfo *contextInfo `json:"messageContextInfo"`
	} `json:"message"`
}

// ParseEvent decodes an Evolution API webhook body. Both the full envelope
// ({"event": ..., "data": {...}}) and a bare message object are accepted.
// Payloads without a message key yield ErrIgnoredEvent.
func ParseEvent(body []byte) (Message, error) {
	raw := body
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Message{}, fmt.Errorf("decode webhook: %w", err)
	}
	if len(envelope.Data) > 0 && envelope.Data[0] == '{' {
		if envelope.Event != "" && !strings.EqualFold(strings.ReplaceAll(envelope.Event, "_", "."), "messages.upsert") {
			return Message{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, envelope.Event)
		}
		raw = envelope.Data
	}

	var data messageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if data.Key.RemoteJID == "" || data.Key.ID == "" {
		return Message{}, fmt.Errorf("%w: missing message key", ErrIgnoredEvent)
	}

	msg := Message{
		Sender: data.Key.RemoteJID,
		ID:     data.Key.ID,
		FromMe: data.Key.FromMe,
	}
	content := data.Message
	contexts := []*contextInfo{data.ContextInfo, content.MessageContextInfo}

	switch data.MessageType {
	case "conversation":
		msg.Text = content.Conversation
	case "extendedTextMessage":
		if content.ExtendedTextMessage != nil {
			msg.Text = content.ExtendedTextMessage.Text
			contexts = append(contexts, content.ExtendedTextMessage.ContextInfo)
		}
	case "documentMessage":
		if content.DocumentMessage != nil {
			msg.Media = &Media{Kind: MediaDocument, MimeType: content.DocumentMessage.MimeType, FileName: content.DocumentMessage.FileName}
			contexts = append(contexts, content.DocumentMessage.ContextInfo)
		}
	case "imageMessage":
		if content.ImageMessage != nil {
			msg.Media = &Media{Kind: MediaImage, MimeType: content.ImageMessage.MimeType}
			contexts = append(contexts, content.ImageMessage.ContextInfo)
		}
	default:
		if content.Conversation != "" {
			msg.Text = content.Conversation
		}
	}

	if msg.Media != nil && content.Base64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(content.Base64)
		if err != nil {
			return Message{}, fmt.Errorf("decode media: %w", err)
		}
		msg.Media.Data = decoded
	}

	for _, info := range contexts {
		if info != nil && info.StanzaID != "" && len(info.QuotedMessage) > 0 && string(info.QuotedMessage) != "null" {
			msg.QuotedID = info.StanzaID
			break
		}
	}
	msg.Text = strings.TrimSpace(msg.Text)
	return msg, nil
}
