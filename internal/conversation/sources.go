package conversation

import (
	"fmt"
	"strings"

	"github.com/eternisai/enchanted-client/internal/protocol"
)

// Citation is a normalized, page-indexed pointer from assistant text to a
// supporting document annotation.
//
// ID is deterministic over (messageID, ordinal) so the same backend record
// re-sent twice maps to the same id. Uniqueness inside a message's citation
// set is enforced by AnnotationID, not by ID.
type Citation struct {
	ID           string
	Page         int
	Label        string
	LabelID      string
	AnnotationID string
	RawText      string
	TokensByPage map[int][]string
	BoundsByPage map[int][][]float64
}

// MapSources converts raw backend citation records into Citations keyed by
// deterministic ids. Multi-page raw text fragments are joined with a single
// space into the citation's aggregate RawText.
func MapSources(raw []protocol.RawSource, messageID string) []Citation {
	out := make([]Citation, 0, len(raw))
	for ordinal, rs := range raw {
		c := Citation{
			ID:           fmt.Sprintf("%s.%d", messageID, ordinal),
			Label:        rs.Label,
			LabelID:      rs.LabelID,
			AnnotationID: rs.AnnotationID,
		}

		fragments := make([]string, 0, len(rs.Pages))
		for i, page := range rs.Pages {
			if i == 0 {
				c.Page = page.Page
			}
			if page.Text != "" {
				fragments = append(fragments, page.Text)
			}
			if len(page.Tokens) > 0 {
				if c.TokensByPage == nil {
					c.TokensByPage = make(map[int][]string)
				}
				c.TokensByPage[page.Page] = page.Tokens
			}
			if len(page.Bounds) > 0 {
				if c.BoundsByPage == nil {
					c.BoundsByPage = make(map[int][][]float64)
				}
				c.BoundsByPage[page.Page] = page.Bounds
			}
		}
		c.RawText = strings.Join(fragments, " ")

		out = append(out, c)
	}
	return out
}
