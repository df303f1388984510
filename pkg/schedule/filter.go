package schedule

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/grouplan/grouplan/internal/database"
)

// Filter is a schedule query. The owner predicates are OR-combined, everything else is AND-combined.
// A filter without any owner predicate matches nothing.
type Filter struct {
	UserUuid   string
	GroupUuids []string

	Types []Type
	// StartFrom keeps schedules starting at or after it. Zero means no bound.
	StartFrom time.Time
	// EndUntil keeps schedules ending at or before it. Zero means no bound.
	EndUntil time.Time
	// Search is a case-insensitive substring of the name or of any tag.
	Search string

	Limit  int
	Offset int
}

func (f Filter) hasOwner() bool {
	return f.UserUuid != "" || len(f.GroupUuids) > 0
}

func (f Filter) Matches(s Schedule) bool {
	if !f.hasOwner() {
		return false
	}
	owned := (f.UserUuid != "" && s.UserUuid != nil && *s.UserUuid == f.UserUuid) ||
		(s.GroupUuid != nil && slices.Contains(f.GroupUuids, *s.GroupUuid))
	if !owned {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, s.Type) {
		return false
	}
	if !f.StartFrom.IsZero() && s.StartTime.Before(f.StartFrom) {
		return false
	}
	if !f.EndUntil.IsZero() && s.EndTime.After(f.EndUntil) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if strings.Contains(strings.ToLower(s.Name), needle) {
			return true
		}
		for _, tag := range s.Tags {
			if strings.Contains(strings.ToLower(tag), needle) {
				return true
			}
		}
		return false
	}
	return true
}

// where renders the filter as a SQL condition with positional arguments.
func (f Filter) where() (string, []any) {
	if !f.hasOwner() {
		return "FALSE", nil
	}

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var owners []string
	if f.UserUuid != "" {
		owners = append(owners, "user_uuid = "+arg(f.UserUuid))
	}
	if len(f.GroupUuids) > 0 {
		owners = append(owners, "group_uuid = ANY("+arg(f.GroupUuids)+")")
	}
	conditions := []string{"(" + strings.Join(owners, " OR ") + ")"}

	if len(f.Types) > 0 {
		types := make([]int16, 0, len(f.Types))
		for _, t := range f.Types {
			types = append(types, int16(t))
		}
		conditions = append(conditions, "type = ANY("+arg(types)+")")
	}
	if !f.StartFrom.IsZero() {
		conditions = append(conditions, "start_time >= "+arg(f.StartFrom))
	}
	if !f.EndUntil.IsZero() {
		conditions = append(conditions, "end_time <= "+arg(f.EndUntil))
	}
	if f.Search != "" {
		p := arg(database.ContainsPattern(f.Search))
		conditions = append(conditions,
			"(name ILIKE "+p+" OR EXISTS (SELECT 1 FROM unnest(tags) AS t(tag) WHERE t.tag ILIKE "+p+"))")
	}
	return strings.Join(conditions, " AND "), args
}
