package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpClassifiesOpenThreadRace(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_negotiations_open_buyer_product",
		TableName:      "negotiations",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeAlreadyOpen, fmt.Errorf("insert negotiation: %w", pgErr), "an open negotiation already exists")

	d := Dump(err)
	assert.Equal(t, CodeAlreadyOpen, d.Code)
	assert.Equal(t, "23505", d.PGCode)
	assert.Equal(t, "unique_violation", d.PGClass)
	assert.Equal(t, "ux_negotiations_open_buyer_product", d.PGConstraint)
	assert.Equal(t, "negotiations", d.PGTable)
	require.GreaterOrEqual(t, len(d.Chain), 3)
}

func TestDumpReadsLibPQLockErrors(t *testing.T) {
	err := fmt.Errorf("lock commitment: %w", &pq.Error{Code: "55P03", Table: "commitments", Message: "could not obtain lock"})

	d := Dump(err)
	assert.Equal(t, "55P03", d.PGCode)
	assert.Equal(t, "lock_not_available", d.PGClass)
	assert.Equal(t, "commitments", d.PGTable)
	assert.Empty(t, d.Code)
}

func TestDumpPlainError(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))

	d := Dump(errors.New("redis timeout"))
	assert.Equal(t, "redis timeout", d.TopMessage)
	assert.Empty(t, d.PGCode)
	assert.Empty(t, d.PGClass)
	assert.Len(t, d.Chain, 1)
}
