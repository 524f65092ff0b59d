package audit

import "time"

// Batas paging timeline.
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// TimelineFilters menampung filter audit timeline. To bersifat eksklusif.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Types    []EventType
	Actor    string
	Subject  string
	Page     int
	PageSize int
}

// normalized mengisi default paging dan membatasi ukuran halaman.
func (f TimelineFilters) normalized() TimelineFilters {
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return f
}

// window mengembalikan offset dan limit; limit membaca satu baris ekstra untuk
// mendeteksi halaman berikutnya.
func (f TimelineFilters) window() (offset, limit int32) {
	return int32((f.Page - 1) * f.PageSize), int32(f.PageSize + 1)
}

// TimelineRow mewakili satu baris audit timeline.
type TimelineRow struct {
	At       time.Time
	Type     EventType
	Actor    string
	Subject  string
	Metadata map[string]string
}

// PagingInfo menyimpan metadata pagination. PrevPage dan NextPage bernilai 0
// bila tidak ada.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

func newPaging(page, size int, hasNext bool) PagingInfo {
	p := PagingInfo{Page: page, PageSize: size, HasNext: hasNext}
	if page > 1 {
		p.PrevPage = page - 1
	}
	if hasNext {
		p.NextPage = page + 1
	}
	return p
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// FiltersViewModel menampung nilai filter untuk template. To bersifat inklusif.
type FiltersViewModel struct {
	From    time.Time
	To      time.Time
	Types   []EventType
	Actor   string
	Subject string
}

// ViewModel menyatukan data untuk template timeline dan ekspor PDF.
type ViewModel struct {
	Filters    FiltersViewModel
	Rows       []TimelineRow
	Paging     PagingInfo
	EventTypes []EventType
}

// NewViewModel menyusun view model dari filter dan hasil query.
func NewViewModel(filters TimelineFilters, result Result) ViewModel {
	to := filters.To
	if !to.IsZero() {
		to = to.Add(-24 * time.Hour)
	}
	return ViewModel{
		Filters: FiltersViewModel{
			From:    filters.From,
			To:      to,
			Types:   filters.Types,
			Actor:   filters.Actor,
			Subject: filters.Subject,
		},
		Rows:       append([]TimelineRow(nil), result.Rows...),
		Paging:     result.Paging,
		EventTypes: EventTypes(),
	}
}
