package pathgen

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwantia/gostow/pkg/storage"
)

func TestCleanFilenameIdempotent(t *testing.T) {
	inputs := []string{
		"report.pdf",
		"../../etc/passwd",
		"a b c;rm -rf *.txt",
		"___",
		"",
		"weird\x00name\n.png",
		"normal_name-1.2.jpg",
	}
	for _, in := range inputs {
		once := CleanFilename(in)
		twice := CleanFilename(once)
		assert.Equal(t, once, twice, "not idempotent for %q", in)
		assert.NotEmpty(t, once)
		for _, r := range once {
			assert.False(t, unsafe(r), "unsafe rune %q survived in %q", r, once)
		}
	}
}

func TestCleanFilenameFallback(t *testing.T) {
	assert.Equal(t, "file", CleanFilename(""))
	assert.Equal(t, "file", CleanFilename("///"))
	assert.Equal(t, "file", CleanFilename("___"))
}

func TestValidatePath(t *testing.T) {
	valid := []string{
		"contacts/2026/08/31/photo_abcd1234.jpg",
		"files/a/b/c.txt",
		"single.bin",
	}
	for _, p := range valid {
		assert.NoError(t, ValidatePath(p), p)
	}

	invalid := []string{
		"../escape.txt",
		"a/../../b",
		"/absolute/path",
		"\\absolute\\path",
		"C:\\windows\\path",
		"c:/lower/drive",
		"embedded\x00null",
	}
	for _, p := range invalid {
		err := ValidatePath(p)
		require.Error(t, err, p)
		assert.ErrorIs(t, err, storage.ErrPathSecurity, p)
	}
}

func TestGeneratePathShape(t *testing.T) {
	ts := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	p := GeneratePath("Quarterly Report.pdf", "tbl_contacts", "application/pdf", ts, 42)

	require.NoError(t, ValidatePath(p))
	parts := strings.Split(p, "/")
	require.Len(t, parts, 5)
	assert.Equal(t, "contacts", parts[0])
	assert.Equal(t, "2026", parts[1])
	assert.Equal(t, "03", parts[2])
	assert.Equal(t, "07", parts[3])
	assert.True(t, strings.HasPrefix(parts[4], "Quarterly_Report_"))
	assert.True(t, strings.HasSuffix(parts[4], ".pdf"))
}

func TestGeneratePathNeverUnsafe(t *testing.T) {
	ts := time.Now()
	names := []string{"../../../etc/passwd", "/abs.txt", "nul\x00l.png", "", "a*b?.gif"}
	for _, name := range names {
		p := GeneratePath(name, "tbl_documents", "image/png", ts, 7)
		assert.NoError(t, ValidatePath(p), "input %q produced %q", name, p)
		assert.NotContains(t, p, "..")
		assert.False(t, strings.HasPrefix(p, "/"))
	}
}

func TestGeneratePathCollisionResistance(t *testing.T) {
	ts := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		p := GeneratePath("same.txt", "tbl_notes", "text/plain", ts, 1)
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
}

func TestGeneratePathExtensionFromMime(t *testing.T) {
	ts := time.Now()
	p := GeneratePath("blob", "", "image/jpeg", ts, 1)
	assert.True(t, strings.HasSuffix(p, ".jpg"), p)
	assert.True(t, strings.HasPrefix(p, DefaultBucket+"/"), p)

	p = GeneratePath("blob", "", "application/x-unknown", ts, 1)
	assert.True(t, strings.HasSuffix(p, ".bin"), p)
}

func TestGeneratePathCapsLongNames(t *testing.T) {
	long := strings.Repeat("x", 500) + ".txt"
	p := GeneratePath(long, "tbl_emails", "text/plain", time.Now(), 3)
	base := p[strings.LastIndex(p, "/")+1:]
	assert.LessOrEqual(t, len(base), maxBaseLen+suffixLen+10)
}

func TestEntityBucket(t *testing.T) {
	assert.Equal(t, "contacts", EntityBucket("tbl_contacts"))
	assert.Equal(t, "contacts", EntityBucket("Contacts"))
	assert.Equal(t, DefaultBucket, EntityBucket(""))
	assert.Equal(t, "my_entity", EntityBucket("My Entity"))
}
