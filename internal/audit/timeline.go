package audit

import (
	"context"
	"fmt"
	"time"
)

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	ActorID    int64
	EntityType string
	EntityID   int64
	Action     string
	Page       int
	PageSize   int
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps timeline rows with paging information.
type Result struct {
	Events []Event
	Paging PagingInfo
}

// TimelineRepository describes the queries the timeline service needs.
type TimelineRepository interface {
	Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error)
	All(ctx context.Context, filters TimelineFilters) ([]Event, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo TimelineRepository
}

// NewService constructs an audit timeline service.
func NewService(repo TimelineRepository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches a page of audit events, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Window(ctx, filters, pageSize+1, offset)
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
	return Result{Events: rows, Paging: paging}, nil
}

// Export fetches the full filtered timeline without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Event, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.All(ctx, filters)
}
