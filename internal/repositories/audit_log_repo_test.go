package repositories

import (
	"testing"

	"github.com/BradenHooton/scribe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jane@example.com", "jane@example.com"},
		{"%", `\%`},
		{"_", `\_`},
		{`a\b`, `a\\b`},
		{`50%_off\`, `50\%\_off\\`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLike(tt.in))
		})
	}
}

func TestBuildComplianceWhere_ActorEmailIsLiteral(t *testing.T) {
	where, args := buildComplianceWhere(models.ComplianceFilter{ActorEmail: "_"})

	assert.Contains(t, where, `u.email ILIKE '%' || $1 || '%' ESCAPE '\'`)
	require.Len(t, args, 1)
	assert.Equal(t, `\_`, args[0])
}

func TestBuildComplianceWhere_Empty(t *testing.T) {
	where, args := buildComplianceWhere(models.ComplianceFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}
