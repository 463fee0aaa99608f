package digest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
)

// Attachment is a binary included with a digest e-mail.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AttachmentLoader resolves the signed-document binary referenced by a
// notification's metadata. A nil return with nil error means no document
// is available and the notification is listed without an attachment.
type AttachmentLoader interface {
	Load(ctx context.Context, tenantID string, metadata map[string]string) (*Attachment, error)
}

// Composer renders one digest batch into a single MIME message.
type Composer struct {
	from        string
	attachments AttachmentLoader
}

func NewComposer(from string, attachments AttachmentLoader) *Composer {
	return &Composer{from: from, attachments: attachments}
}

// Compose builds the localized digest e-mail for one user's batch. The
// subject names the single event when the batch holds exactly one
// notification and falls back to a count otherwise. The body lists
// each notification's events, deduplicated by type.
func (c *Composer) Compose(ctx context.Context, to, locale string, list []notifications.Notification, now time.Time) ([]byte, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("compose digest: empty batch")
	}

	printer := message.NewPrinter(localeTag(locale))

	subject := subjectLine(printer, list)
	body := bodyText(printer, list)

	var header mail.Header
	header.SetDate(now)
	header.SetSubject(subject)
	header.SetAddressList("From", []*mail.Address{{Address: c.from}})
	header.SetAddressList("To", []*mail.Address{{Address: to}})

	var buf bytes.Buffer
	writer, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("compose digest: %w", err)
	}

	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	textPart, err := writer.CreateSingleInline(textHeader)
	if err != nil {
		return nil, fmt.Errorf("compose digest: %w", err)
	}
	if _, err := io.WriteString(textPart, body); err != nil {
		return nil, fmt.Errorf("compose digest: %w", err)
	}
	if err := textPart.Close(); err != nil {
		return nil, fmt.Errorf("compose digest: %w", err)
	}

	if c.attachments != nil {
		for i := range list {
			if list[i].Type != notifications.TypeDocumentSigned {
				continue
			}
			attachment, err := c.attachments.Load(ctx, list[i].TenantID, list[i].Metadata)
			if err != nil {
				return nil, fmt.Errorf("load signed document: %w", err)
			}
			if attachment == nil {
				continue
			}
			var attachmentHeader mail.AttachmentHeader
			attachmentHeader.SetContentType(attachment.ContentType, nil)
			attachmentHeader.SetFilename(attachment.Filename)
			part, err := writer.CreateAttachment(attachmentHeader)
			if err != nil {
				return nil, fmt.Errorf("compose digest: %w", err)
			}
			if _, err := part.Write(attachment.Data); err != nil {
				return nil, fmt.Errorf("compose digest: %w", err)
			}
			if err := part.Close(); err != nil {
				return nil, fmt.Errorf("compose digest: %w", err)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("compose digest: %w", err)
	}
	return buf.Bytes(), nil
}

func localeTag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}

func subjectLine(printer *message.Printer, list []notifications.Notification) string {
	if len(list) == 1 {
		return eventTitle(printer, list[0].Type, list[0].EntityDisplayName)
	}
	return printer.Sprintf("%d notifications", len(list))
}

func eventTitle(printer *message.Printer, eventType, displayName string) string {
	switch eventType {
	case notifications.TypeMentioned:
		return printer.Sprintf("You were mentioned on %s", displayName)
	case notifications.TypeCommented:
		return printer.Sprintf("New comment on %s", displayName)
	case notifications.TypeAssigned:
		return printer.Sprintf("You were assigned to %s", displayName)
	case notifications.TypeDocumentSigned:
		return printer.Sprintf("Document signed on %s", displayName)
	default:
		return printer.Sprintf("Activity on %s", displayName)
	}
}

// bodyText lists each notification's event types, merged history included,
// deduplicated per notification.
func bodyText(printer *message.Printer, list []notifications.Notification) string {
	var b strings.Builder
	for i := range list {
		b.WriteString("- ")
		b.WriteString(list[i].EntityDisplayName)
		b.WriteString(": ")
		b.WriteString(strings.Join(distinctEventTypes(&list[i]), ", "))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(printer.Sprintf("Open the app to catch up."))
	b.WriteString("\n")
	return b.String()
}

func distinctEventTypes(n *notifications.Notification) []string {
	seen := map[string]bool{n.Type: true}
	types := []string{n.Type}
	for _, entry := range n.Also {
		if !seen[entry.Type] {
			seen[entry.Type] = true
			types = append(types, entry.Type)
		}
	}
	return types
}
