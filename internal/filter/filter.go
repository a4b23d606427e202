package filter

import (
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/amishk599/inboxsheet/internal/model"
)

// Ensure HeaderFilter implements model.MessageFilter.
var _ model.MessageFilter = (*HeaderFilter)(nil)

// HeaderFilter matches messages whose subject and sender contain the
// configured substrings and which are not older than maxAge.
// Matching is case-insensitive. Empty settings are treated as "match all".
type HeaderFilter struct {
	subject string
	from    string
	maxAge  time.Duration
	now     func() time.Time
}

// NewHeaderFilter returns a filter on subject, sender and age.
func NewHeaderFilter(subject, from string, maxAge time.Duration) *HeaderFilter {
	return &HeaderFilter{
		subject: subject,
		from:    from,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Match returns true if the message passes every configured criterion.
// Messages without a Date header are never rejected on age.
func (f *HeaderFilter) Match(m model.MessageMeta) bool {
	if f.subject != "" && !containsFold(m.Subject, f.subject) {
		return false
	}
	if f.from != "" && !containsFold(m.From, f.from) {
		return false
	}
	if f.maxAge > 0 && !m.Date.IsZero() && m.Date.Before(f.now().Add(-f.maxAge)) {
		return false
	}
	return true
}

// Narrow adds the server-side equivalent of the filter to an IMAP search so
// fewer envelopes have to be fetched. SINCE has day granularity on the
// server; Match still applies the exact cutoff.
func (f *HeaderFilter) Narrow(c *imap.SearchCriteria) {
	if f.subject != "" {
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: "Subject", Value: f.subject})
	}
	if f.from != "" {
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: "From", Value: f.from})
	}
	if f.maxAge > 0 {
		c.Since = f.now().Add(-f.maxAge)
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
