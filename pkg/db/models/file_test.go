package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwantia/gostow/pkg/storage"
)

func TestResolvedBackendTypeLegacyDefault(t *testing.T) {
	assert.Equal(t, storage.TypeLocal, (&FileRecord{}).ResolvedBackendType())
	assert.Equal(t, storage.TypeS3, (&FileRecord{BackendType: "s3"}).ResolvedBackendType())
}

func TestSourcePathPrecedence(t *testing.T) {
	record := &FileRecord{URI: "uploads/legacy.pdf"}
	p, err := record.SourcePath()
	require.NoError(t, err)
	assert.Equal(t, "uploads/legacy.pdf", p)

	record.BackendPath = "files/2025/03/01/legacy_ab12cd34.pdf"
	p, err = record.SourcePath()
	require.NoError(t, err)
	assert.Equal(t, "files/2025/03/01/legacy_ab12cd34.pdf", p)

	_, err = (&FileRecord{}).SourcePath()
	assert.ErrorIs(t, err, storage.ErrMissingPath)
}

func TestMetadataRoundTripAndMerge(t *testing.T) {
	record := &FileRecord{}
	assert.Empty(t, record.Metadata())

	record.SetMetadata(map[string]string{MetaConfigName: "primary"})
	record.MergeMetadata(map[string]string{MetaOriginalBackend: "local"})

	md := record.Metadata()
	assert.Equal(t, "primary", md[MetaConfigName])
	assert.Equal(t, "local", md[MetaOriginalBackend])

	// Malformed blobs decode to an empty map instead of failing.
	record.BackendMetadata = "{not json"
	assert.Empty(t, record.Metadata())
}
