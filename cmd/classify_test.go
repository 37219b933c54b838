//go:build !integration

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralab/landcover-cli/internal/model"
)

// resetClassifyFlags clears the flag-backed globals between tests.
func resetClassifyFlags(t *testing.T) {
	t.Helper()
	classifyJobPath = ""
	classifyPointsPath = ""
	classifyItemURL = ""
	classifyOutput = ""
	classifyTrees = 0
	classifyNoIndices = false
	t.Cleanup(func() {
		classifyJobPath = ""
		classifyPointsPath = ""
		classifyItemURL = ""
		classifyOutput = ""
		classifyTrees = 0
		classifyNoIndices = false
	})
}

func writeJobFile(t *testing.T, job model.Job) string {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestBuildJob_FromFile(t *testing.T) {
	resetClassifyFlags(t)
	classifyJobPath = writeJobFile(t, model.Job{
		TrainingData: []model.TrainingPoint{{Lat: 52.5, Lon: 13.4, Label: 1, ClassName: "forest"}},
		STACItemURL:  "https://example.com/items/scene",
		OutputPath:   "cover.tif",
		NumTrees:     25,
	})

	job, err := buildJob()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/items/scene", job.STACItemURL)
	assert.Equal(t, "cover.tif", job.OutputPath)
	assert.Equal(t, 25, job.NumTrees)
	assert.Len(t, job.TrainingData, 1)
}

func TestBuildJob_FlagOverrides(t *testing.T) {
	resetClassifyFlags(t)
	classifyJobPath = writeJobFile(t, model.Job{
		TrainingData: []model.TrainingPoint{{Lat: 52.5, Lon: 13.4, Label: 1}},
		STACItemURL:  "https://example.com/items/old",
		OutputPath:   "old.tif",
	})
	classifyItemURL = "https://example.com/items/new"
	classifyOutput = "new.tif"
	classifyTrees = 80
	classifyNoIndices = true

	job, err := buildJob()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/items/new", job.STACItemURL)
	assert.Equal(t, "new.tif", job.OutputPath)
	assert.Equal(t, 80, job.NumTrees)
	require.NotNil(t, job.IncludeIndices)
	assert.False(t, *job.IncludeIndices)
}

func TestBuildJob_PointsFile(t *testing.T) {
	resetClassifyFlags(t)
	csv := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(csv, []byte(
		"lat,lon,label,class_name\n52.5,13.4,1,forest\n52.6,13.5,2,water\n"), 0o644))

	classifyPointsPath = csv
	classifyItemURL = "https://example.com/items/scene"
	classifyOutput = "cover.tif"

	job, err := buildJob()
	require.NoError(t, err)
	require.Len(t, job.TrainingData, 2)
	assert.Equal(t, "water", job.TrainingData[1].ClassName)
}

func TestBuildJob_InlinePointsWin(t *testing.T) {
	resetClassifyFlags(t)
	classifyJobPath = writeJobFile(t, model.Job{
		TrainingData: []model.TrainingPoint{{Lat: 1, Lon: 2, Label: 3}},
		STACItemURL:  "https://example.com/items/scene",
		OutputPath:   "cover.tif",
	})
	csv := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(csv, []byte("lat,lon,label\n52.5,13.4,1\n"), 0o644))
	classifyPointsPath = csv

	job, err := buildJob()
	require.NoError(t, err)
	require.Len(t, job.TrainingData, 1)
	assert.Equal(t, 3, job.TrainingData[0].Label)
}

func TestBuildJob_BadFile(t *testing.T) {
	resetClassifyFlags(t)
	classifyJobPath = filepath.Join(t.TempDir(), "missing.json")
	_, err := buildJob()
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	classifyJobPath = bad
	_, err = buildJob()
	assert.Error(t, err)
}
