package lucid

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kubit-go/kubit/database"
	"github.com/kubit-go/kubit/validation"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"
)

// ruleParams is the param of unique and exists: table.column with an
// optional connection (IE: `validate:"unique=users.email"` or
// `validate:"exists=accounts.id.billing"`)
type ruleParams struct {
	table      string
	column     string
	connection string
}

func parseRuleParams(param string) (ruleParams, bool) {
	parts := strings.Split(param, ".")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return ruleParams{}, false
	}

	p := ruleParams{table: parts[0], column: parts[1]}
	if len(parts) == 3 {
		p.connection = parts[2]
	}
	return p, true
}

// extendValidator adds the unique and exists rules. Lookup failures are
// logged and fail the rule.
func extendValidator(v *validation.Validator, db *database.Database, logger *logrus.Logger) error {
	count := func(ctx context.Context, rule string, fl validator.FieldLevel) (int64, bool) {
		params, ok := parseRuleParams(fl.Param())
		if !ok {
			logger.Errorf("%s rule: invalid param %q, expected table.column", rule, fl.Param())
			return 0, false
		}

		query, err := db.Query(ctx, params.table, params.connection)
		if err != nil {
			logger.WithError(err).Errorf("%s rule: unable to query %s", rule, params.table)
			return 0, false
		}

		var total int64
		if err := query.Where(clause.Eq{Column: clause.Column{Name: params.column}, Value: fl.Field().Interface()}).Count(&total).Error; err != nil {
			logger.WithError(err).Errorf("%s rule: unable to query %s", rule, params.table)
			return 0, false
		}

		return total, true
	}

	if err := v.Extend("unique", func(ctx context.Context, fl validator.FieldLevel) bool {
		total, ok := count(ctx, "unique", fl)
		return ok && total == 0
	}); err != nil {
		return err
	}

	return v.Extend("exists", func(ctx context.Context, fl validator.FieldLevel) bool {
		total, ok := count(ctx, "exists", fl)
		return ok && total > 0
	})
}
