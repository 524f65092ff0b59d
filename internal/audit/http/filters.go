package audithttp

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sabha-admin/sabha/internal/audit"
)

const (
	dateLayout       = "2006-01-02"
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// timelineQuery adalah bentuk mentah query string timeline.
type timelineQuery struct {
	From     string   `validate:"omitempty,datetime=2006-01-02"`
	To       string   `validate:"omitempty,datetime=2006-01-02"`
	Types    []string `validate:"dive,omitempty,event_type"`
	Actor    string   `validate:"max=255"`
	Subject  string   `validate:"max=255"`
	Page     string   `validate:"omitempty,number"`
	PageSize string   `validate:"omitempty,number"`
}

// queryField memetakan field struct ke nama parameter query.
var queryField = map[string]string{
	"From":     "from",
	"To":       "to",
	"Types":    "type",
	"Actor":    "actor",
	"Subject":  "subject",
	"Page":     "page",
	"PageSize": "page_size",
}

var filterValidator = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return audit.EventType(fl.Field().String()).Valid()
	})
	return v
}()

// filterError menandai parameter query yang ditolak.
type filterError struct {
	field string
}

func (e filterError) Error() string {
	return "invalid audit filter: " + e.field
}

// parseFilters membaca filter timeline. Tanggal "to" inklusif, sehingga batas
// atas yang dikirim ke service adalah awal hari berikutnya.
func parseFilters(values url.Values, now time.Time) (audit.TimelineFilters, error) {
	q := timelineQuery{
		From:     strings.TrimSpace(values.Get("from")),
		To:       strings.TrimSpace(values.Get("to")),
		Actor:    strings.TrimSpace(values.Get("actor")),
		Subject:  strings.TrimSpace(values.Get("subject")),
		Page:     strings.TrimSpace(values.Get("page")),
		PageSize: strings.TrimSpace(values.Get("page_size")),
	}
	for _, raw := range values["type"] {
		if t := strings.TrimSpace(raw); t != "" {
			q.Types = append(q.Types, t)
		}
	}
	if err := filterValidator.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			name, _, _ := strings.Cut(verrs[0].StructField(), "[")
			return audit.TimelineFilters{}, filterError{field: queryField[name]}
		}
		return audit.TimelineFilters{}, err
	}

	to := now.UTC().Truncate(24 * time.Hour)
	if q.To != "" {
		to, _ = time.Parse(dateLayout, q.To)
	}
	from := to.Add(-defaultDateRange)
	if q.From != "" {
		from, _ = time.Parse(dateLayout, q.From)
	}
	if from.After(to) || to.Sub(from) > maxDateRange {
		return audit.TimelineFilters{}, filterError{field: "range"}
	}

	page := atoiOr(q.Page, 1)
	if page < 1 {
		return audit.TimelineFilters{}, filterError{field: "page"}
	}
	pageSize := atoiOr(q.PageSize, audit.DefaultPageSize)
	if pageSize < 1 {
		return audit.TimelineFilters{}, filterError{field: "page_size"}
	}

	filters := audit.TimelineFilters{
		From:     from,
		To:       to.Add(24 * time.Hour),
		Actor:    q.Actor,
		Subject:  q.Subject,
		Page:     page,
		PageSize: min(pageSize, audit.MaxPageSize),
	}
	for _, t := range q.Types {
		filters.Types = append(filters.Types, audit.EventType(t))
	}
	return filters, nil
}

func atoiOr(raw string, fallback int) int {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return fallback
}
