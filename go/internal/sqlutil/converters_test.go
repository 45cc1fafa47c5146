package sqlutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromSqlString(t *testing.T) {
	assert.Equal(t, "fallback", FromSqlString(sql.NullString{}, "fallback"))
	assert.Equal(t, "", FromSqlString(sql.NullString{String: "", Valid: true}, "fallback"))
	assert.Equal(t, "x", FromSqlString(sql.NullString{String: "x", Valid: true}, "fallback"))
}
