package digest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
)

// RecordAttachmentLoader resolves signed-document binaries from the
// document record type. A notification references its document through
// the "document" metadata key.
type RecordAttachmentLoader struct {
	store records.Store
}

func NewRecordAttachmentLoader(store records.Store) *RecordAttachmentLoader {
	return &RecordAttachmentLoader{store: store}
}

func (l *RecordAttachmentLoader) Load(ctx context.Context, tenantID string, metadata map[string]string) (*Attachment, error) {
	documentID := metadata["document"]
	if documentID == "" {
		return nil, nil
	}

	state, err := l.store.SelectOne(ctx, "documents", records.Conditions{
		"id":        documentID,
		"client_id": tenantID,
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}

	encoded, _ := state["data"].(string)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode document %s: %w", documentID, err)
	}

	filename, _ := state["filename"].(string)
	contentType, _ := state["content_type"].(string)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Attachment{Filename: filename, ContentType: contentType, Data: data}, nil
}
