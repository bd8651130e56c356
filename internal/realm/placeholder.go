package realm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"duck-warehouse/internal/domain"
)

// substFormat renders squirrel's positional "?" placeholders as the
// datastore's named ":substN" placeholders. "??" escapes a literal "?".
type substFormat struct{}

var _ squirrel.PlaceholderFormat = substFormat{}

func (substFormat) ReplacePlaceholders(sql string) (string, error) {
	var b strings.Builder
	n := 0
	for {
		i := strings.Index(sql, "?")
		if i < 0 {
			break
		}
		if len(sql) > i+1 && sql[i+1] == '?' {
			b.WriteString(sql[:i+1])
			sql = sql[i+2:]
			continue
		}
		b.WriteString(sql[:i])
		fmt.Fprintf(&b, ":subst%d", n)
		n++
		sql = sql[i+1:]
	}
	b.WriteString(sql)
	return b.String(), nil
}

// runSelect renders b and executes it against store.
func runSelect(ctx context.Context, store domain.Datastore, b squirrel.SelectBuilder) ([]domain.Row, error) {
	sql, args, err := b.PlaceholderFormat(substFormat{}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	params := make(map[string]any, len(args))
	for i, a := range args {
		params[fmt.Sprintf("subst%d", i)] = a
	}
	return store.Query(ctx, sql, params)
}
