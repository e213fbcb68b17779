// Package store persists finished notes to a Notion database.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"notebot/internal/domain"
)

const (
	// MaxTitleLen is the hard ceiling of the store's title field.
	MaxTitleLen = 100

	// maxParagraphLen is Notion's per-rich-text content limit.
	maxParagraphLen = 2000

	defaultTimeout = 30 * time.Second
)

// NotionConfig configures the Notion note store.
type NotionConfig struct {
	Token            string
	DatabaseID       string
	TitleProperty    string // default "Name"
	CategoryProperty string // default "Category"
	Timeout          time.Duration
	Logger           *slog.Logger
}

// Notion implements domain.NoteStore on a Notion database. One page is
// created per note: title and category as properties, the body as
// paragraph blocks.
type Notion struct {
	client       *notionapi.Client
	databaseID   notionapi.DatabaseID
	titleProp    string
	categoryProp string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewNotion creates a Notion note store.
func NewNotion(cfg NotionConfig) *Notion {
	if cfg.TitleProperty == "" {
		cfg.TitleProperty = "Name"
	}
	if cfg.CategoryProperty == "" {
		cfg.CategoryProperty = "Category"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := notionapi.NewClient(
		notionapi.Token(cfg.Token),
		notionapi.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	return &Notion{
		client:       client,
		databaseID:   notionapi.DatabaseID(cfg.DatabaseID),
		titleProp:    cfg.TitleProperty,
		categoryProp: cfg.CategoryProperty,
		timeout:      cfg.Timeout,
		logger:       cfg.Logger,
	}
}

// Save creates one page for the note. An empty or whitespace-only body
// is a logged no-op that reports success, so empty records are never
// created. Store failures surface as a single error; this client does
// not retry.
func (n *Notion) Save(ctx context.Context, note domain.Note) error {
	if strings.TrimSpace(note.Body) == "" {
		n.logger.Info("empty note body, skipping save")
		return nil
	}

	title := TruncateTitle(note.Title)
	if title == "" {
		title = TruncateTitle(note.Body)
	}

	props := notionapi.Properties{
		n.titleProp: notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
		},
	}
	if note.Category != "" {
		props[n.categoryProp] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: note.Category},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	_, err := n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: n.databaseID,
		},
		Properties: props,
		Children:   bodyBlocks(note.Body),
	})
	if err != nil {
		return fmt.Errorf("notion page create: %w", err)
	}

	n.logger.Info("note saved",
		"category", note.Category,
		"title_len", len(title),
		"body_len", len(note.Body),
	)
	return nil
}

// Healthy checks that the target database is reachable with the
// configured token. Used by doctor.
func (n *Notion) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if _, err := n.client.Database.Get(ctx, n.databaseID); err != nil {
		return fmt.Errorf("notion database not reachable: %w", err)
	}
	return nil
}

// TruncateTitle cuts a title to the store's hard length ceiling. A
// plain prefix cut keeps truncation deterministic.
func TruncateTitle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= MaxTitleLen {
		return s
	}
	return s[:MaxTitleLen]
}

// bodyBlocks splits the body into paragraph blocks within Notion's
// per-paragraph content limit.
func bodyBlocks(body string) []notionapi.Block {
	var blocks []notionapi.Block
	for len(body) > 0 {
		chunk := body
		if len(chunk) > maxParagraphLen {
			chunk = body[:maxParagraphLen]
		}
		body = body[len(chunk):]
		blocks = append(blocks, notionapi.ParagraphBlock{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeParagraph,
			},
			Paragraph: notionapi.Paragraph{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: chunk}}},
			},
		})
	}
	return blocks
}
