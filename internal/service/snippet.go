package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arefin/codelab/internal/apperror"
	"github.com/arefin/codelab/internal/model"
	"github.com/arefin/codelab/internal/repository"
)

const MaxSnippetNameLength = 100

// SnippetService handles saved code templates. Snippets are scoped to their
// owner: every operation takes the caller's user ID and refuses to touch
// another user's rows. Snippet code is not validated at save time; it goes
// through the execution pipeline's validator when it is actually run.
type SnippetService struct {
	repo   repository.SnippetRepository
	logger *slog.Logger
}

func NewSnippetService(repo repository.SnippetRepository, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		logger: logger,
	}
}

// Create validates and saves a new snippet for the given user.
func (s *SnippetService) Create(ctx context.Context, userID string, lang model.Language, name, code, description string) (*model.Snippet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "snippet name is required")
	}
	if len(name) > MaxSnippetNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("snippet name must be %d characters or less", MaxSnippetNameLength))
	}
	if lang != model.LanguagePython && lang != model.LanguageKarel {
		return nil, apperror.ValidationFailed("language",
			fmt.Sprintf("unknown language: %s", lang))
	}

	snippet := &model.Snippet{
		UserID:      userID,
		Name:        name,
		Language:    lang,
		Code:        code,
		Description: strings.TrimSpace(description),
	}

	if err := s.repo.CreateSnippet(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("userID", userID),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("userID", userID),
	)
	return snippet, nil
}

// GetByID retrieves one of the user's snippets. A snippet belonging to
// someone else comes back as NotFound so IDs don't reveal existence.
func (s *SnippetService) GetByID(ctx context.Context, userID, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}

	snippet, err := s.repo.GetSnippet(ctx, id)
	if err != nil {
		return nil, err
	}
	if snippet.UserID != userID {
		return nil, apperror.NotFound("snippet", id)
	}
	return snippet, nil
}

// List retrieves the user's snippets with pagination.
func (s *SnippetService) List(ctx context.Context, userID string, limit, offset int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	snippets, err := s.repo.ListSnippets(ctx, userID, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("failed to list snippets",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Update modifies one of the user's snippets. It fetches first so ownership
// is checked and the caller gets the full updated row back. Empty name means
// keep the current one; code and description are always replaced.
func (s *SnippetService) Update(ctx context.Context, userID, id, name, code, description string) (*model.Snippet, error) {
	snippet, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		if len(name) > MaxSnippetNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("snippet name must be %d characters or less", MaxSnippetNameLength))
		}
		snippet.Name = name
	}
	snippet.Code = code
	snippet.Description = strings.TrimSpace(description)

	if err := s.repo.UpdateSnippet(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated",
		slog.String("id", snippet.ID),
		slog.String("userID", userID),
	)
	return snippet, nil
}

// Delete removes one of the user's snippets.
func (s *SnippetService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.GetByID(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteSnippet(ctx, id); err != nil {
		return err
	}
	s.logger.Info("snippet deleted",
		slog.String("id", id),
		slog.String("userID", userID),
	)
	return nil
}
