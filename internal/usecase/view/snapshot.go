package view

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/domain/query"
	"github.com/kailas-cloud/imagespace/internal/domain/result"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
	"github.com/kailas-cloud/imagespace/internal/usecase/orchestrator"
)

// Snapshot is one full rendering of the result view.
type Snapshot struct {
	SessionID string        `json:"session_id"`
	Render    int           `json:"render"`
	ViewMode  viewmode.Mode `json:"view_mode"`
	Header    Header        `json:"header"`
	Results   []Result      `json:"results"`
	Paging    *Paging       `json:"pagination,omitempty"`
	// Classifications is the active classification filter.
	Classifications []string `json:"classifications"`
}

// Header describes what was searched for.
type Header struct {
	Kind     query.Kind   `json:"kind"`
	Query    string       `json:"query,omitempty"`
	URL      string       `json:"url,omitempty"`
	Mode     string       `json:"mode,omitempty"`
	ModeName string       `json:"mode_name,omitempty"`
	Image    *SearchImage `json:"image,omitempty"`
}

// SearchImage is the resolved search image.
type SearchImage struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	RecordID string `json:"record_id,omitempty"`
	Computed bool   `json:"computed"`
}

// Result is one rendered hit.
type Result struct {
	ID       string         `json:"id"`
	ImageURL string         `json:"image_url,omitempty"`
	Score    *float64       `json:"score,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Paging is the pagination widget state. Page is 1-based.
type Paging struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	Total       int  `json:"total"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Renderer displays snapshots. Render is called on the event loop and must not block.
type Renderer interface {
	Render(s Snapshot)
}

// LogRenderer writes a one-line summary of every render.
type LogRenderer struct {
	logger *zap.Logger
}

// NewLogRenderer creates a renderer that logs at debug.
func NewLogRenderer(logger *zap.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

// Render implements Renderer.
func (r *LogRenderer) Render(s Snapshot) {
	fields := []zap.Field{
		zap.String("session_id", s.SessionID),
		zap.Int("render", s.Render),
		zap.String("view_mode", string(s.ViewMode)),
		zap.Int("results", len(s.Results)),
	}
	if s.Paging != nil {
		fields = append(fields, zap.Int("page", s.Paging.Page), zap.Int("total", s.Paging.Total))
	}
	r.logger.Debug("Rendered results", fields...)
}

func headerOf(nav orchestrator.Navigation) Header {
	h := Header{
		URL:      nav.URL,
		Mode:     nav.Mode,
		ModeName: nav.ModeName,
	}
	if nav.Query != nil {
		h.Kind = nav.Query.Kind()
	}
	if q, ok := nav.Query.(query.Stored); ok {
		h.Query = q.QueryString()
	}
	if img := nav.Image; img != nil {
		rec := img.Record()
		h.Image = &SearchImage{
			URL:      img.ImageURL(),
			Kind:     string(img.Kind()),
			RecordID: rec.ID(),
			Computed: rec.Computed(),
		}
	}
	return h
}

func resultsOf(c *collection.Collection) []Result {
	out := make([]Result, 0, c.Len())
	c.Each(func(_ int, r result.Record) {
		res := Result{ID: r.ID(), ImageURL: r.ImageURL(), Fields: r.Fields()}
		if score, ok := r.Score(); ok {
			res.Score = &score
		}
		out = append(out, res)
	})
	return out
}

func pagingOf(c *collection.Collection) *Paging {
	if !c.SupportsPagination() {
		return nil
	}
	return &Paging{
		Page:        c.PageNum() + 1,
		PageSize:    c.PageSize(),
		Total:       c.Total(),
		HasNext:     c.HasNextPage(),
		HasPrevious: c.HasPreviousPage(),
	}
}
