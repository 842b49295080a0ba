package export

import (
	"context"
	"fmt"

	"cardstack/api/internal/store"
)

// CardStore defines the data access the exporter needs. Visibility is
// checked by the caller before export is invoked.
type CardStore interface {
	GetCard(ctx context.Context, cardID string) (store.KnowledgeCard, error)
	ListComments(ctx context.Context, cardID string) ([]store.Comment, error)
}

// Service provides card export functionality
type Service struct {
	store CardStore
}

func NewService(store CardStore) *Service {
	return &Service{store: store}
}

// Export generates an export of one card in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	card, err := s.store.GetCard(ctx, req.CardID)
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}

	data := TemplateData{
		Title:      card.Title,
		Summary:    card.Summary,
		Content:    card.Content,
		Tags:       card.Tags,
		TeamName:   card.OwnerTeamName,
		Author:     card.CreatorName,
		Visibility: card.Visibility,
		LikeCount:  card.LikeCount,
		UpdatedAt:  card.UpdatedAt,
		Comments:   []TemplateComment{},
	}

	if req.IncludeComments {
		comments, err := s.store.ListComments(ctx, req.CardID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		for _, c := range comments {
			data.Comments = append(data.Comments, TemplateComment{
				Author:    c.AuthorName,
				Body:      c.Body,
				CreatedAt: c.CreatedAt,
			})
		}
	}

	html, err := RenderCardHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, card.Title)
	case FormatDOCX:
		return exportDOCX(html, card.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
