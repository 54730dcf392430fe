package migrations

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, ok := parseVersion("V12__add_index.sql")
	assert.True(t, ok)
	assert.Equal(t, 12, v)

	for _, name := range []string{"12__x.sql", "Vx__y.sql", "V3.sql"} {
		_, ok := parseVersion(name)
		assert.False(t, ok, name)
	}
}

func TestListMigrationsOrdersByVersion(t *testing.T) {
	source := fstest.MapFS{
		"V10__later.sql": {Data: []byte("SELECT 1")},
		"V2__second.sql": {Data: []byte("SELECT 1")},
		"V1__first.sql":  {Data: []byte("SELECT 1")},
		"README.md":      {Data: []byte("notes")},
	}
	migs, err := listMigrations(source)
	require.NoError(t, err)
	names := make([]string, len(migs))
	for i, m := range migs {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"V1__first.sql", "V2__second.sql", "V10__later.sql"}, names)

	_, err = listMigrations(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1")}})
	assert.Error(t, err)
}

func TestEmbeddedSchemaDeclaresUniqueIndexes(t *testing.T) {
	migs, err := listMigrations(Files())
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.Equal(t, 1, migs[0].Version)

	raw, err := fs.ReadFile(Files(), migs[0].Name)
	require.NoError(t, err)
	schema := string(raw)
	assert.Contains(t, schema, "uq_enrollments_course_student ON enrollments (course_id, student_id)")
	assert.Contains(t, schema, "uq_submissions_assignment_student ON submissions (assignment_id, student_id)")
	assert.Contains(t, schema, "uq_auth_users_email ON auth_users (email)")
}
