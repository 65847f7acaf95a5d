package main

import (
	"context"
	"testing"

	"mdmemory/internal/config"

	"github.com/stretchr/testify/require"
)

func TestBuildFileOnlyMode(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{Name: "mdmemory-test", Version: "test"},
		Files:    config.FilesConfig{RootPath: t.TempDir()},
		Database: config.DatabaseConfig{UseDatabase: false},
		Embedding: config.EmbeddingConfig{
			Provider:  config.ProviderOpenAI,
			BatchSize: 100,
		},
		Chunking: config.ChunkingConfig{ChunkSize: 800, ChunkOverlap: 200},
		Search:   config.SearchConfig{DefaultLimit: 20, RRFK: 60},
	}

	d, idxStore, cleanup, err := build(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	require.Nil(t, idxStore)
	require.NotNil(t, d.FileStore)
	require.NotNil(t, d.Index)
	require.NotNil(t, d.MemoryMgr)
	require.Nil(t, d.SearchEngine)
	require.NotNil(t, d.Sync)
	require.True(t, d.FileStore.Exists("main.md"))
}
