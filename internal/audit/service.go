// Package audit exposes the audit trail written by every mutating operation.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/inventra/inventra/internal/platform/export"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// RepositoryPort reads audit rows.
type RepositoryPort interface {
	Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error)
	Each(ctx context.Context, f TimelineFilters, fn func(TimelineRow) error) error
}

// Service serves the audit timeline.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page, newest first.
func (s *Service) Timeline(ctx context.Context, f TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := max(f.Page, 1)

	rows, err := s.repo.Window(ctx, f, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export writes every matching row as CSV.
func (s *Service) Export(ctx context.Context, f TimelineFilters, w io.Writer) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	out := export.NewWriter(w)
	if err := out.Row("Occurred At", "Actor", "Action", "Entity", "Entity ID", "Details"); err != nil {
		return err
	}
	err := s.repo.Each(ctx, f, func(row TimelineRow) error {
		actor := row.ActorName
		if actor == "" {
			actor = row.ActorID
		}
		details := ""
		if len(row.Meta) > 0 {
			raw, err := json.Marshal(row.Meta)
			if err != nil {
				return err
			}
			details = string(raw)
		}
		return out.Row(row.At.UTC().Format(time.RFC3339), actor, row.Action, row.Entity, row.EntityID, details)
	})
	if err != nil {
		return err
	}
	return out.Flush()
}
