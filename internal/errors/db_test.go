package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func pgError(code string) *pgconn.PgError {
	return &pgconn.PgError{Code: code, Message: "constraint violated"}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUniqueViolation(pgError(pgerrcode.UniqueViolation)))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert job: %w", pgError(pgerrcode.UniqueViolation))))

	assert.False(t, IsUniqueViolation(pgError(pgerrcode.ForeignKeyViolation)))
	assert.False(t, IsUniqueViolation(goerrors.New("duplicate key value")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsForeignKeyViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsForeignKeyViolation(pgError(pgerrcode.ForeignKeyViolation)))
	assert.False(t, IsForeignKeyViolation(pgError(pgerrcode.UniqueViolation)))
	assert.False(t, IsForeignKeyViolation(nil))
}
