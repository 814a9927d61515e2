package postgres

import sq "github.com/Masterminds/squirrel"

// Builder is the shared squirrel statement builder with $N placeholders.
var Builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
