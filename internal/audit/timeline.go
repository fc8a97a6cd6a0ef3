package audit

import "time"

// TimelineFilters menampung filter untuk audit timeline satu perusahaan.
type TimelineFilters struct {
	CompanyID int64
	From      time.Time
	To        time.Time
	Module    string
	Table     string
	RecordID  int64
	Page      int
	PageSize  int
}

// Matches applies the filters to a record held in memory.
func (f TimelineFilters) Matches(rec Record) bool {
	switch {
	case rec.CompanyID != f.CompanyID:
		return false
	case !f.From.IsZero() && rec.At.Before(f.From):
		return false
	case !f.To.IsZero() && !rec.At.Before(f.To):
		return false
	case f.Module != "" && rec.Module != f.Module:
		return false
	case f.Table != "" && rec.Table != f.Table:
		return false
	case f.RecordID != 0 && rec.RecordID != f.RecordID:
		return false
	}
	return true
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []Record   `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
