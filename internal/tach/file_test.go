package tach

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileSourceReadsInputAndTarget(t *testing.T) {
	// GIVEN
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "fan1_input")
	targetPath := filepath.Join(dir, "fan1_target")
	assert.NoError(t, os.WriteFile(inputPath, []byte("2950"), 0644))
	assert.NoError(t, os.WriteFile(targetPath, []byte("3000"), 0644))

	source := &FileSource{
		Id:         SourceId("fan1", "fan1_0"),
		Path:       inputPath,
		TargetPath: targetPath,
		WithTarget: true,
	}

	// WHEN
	input, err := source.GetInput()
	assert.NoError(t, err)
	target, err := source.GetTarget()
	assert.NoError(t, err)

	// THEN
	assert.Equal(t, 2950.0, input)
	assert.Equal(t, 3000.0, target)
}

func TestFileSourceUnavailable(t *testing.T) {
	// GIVEN
	source := &FileSource{
		Id:   SourceId("fan1", "fan1_0"),
		Path: filepath.Join(t.TempDir(), "does_not_exist"),
	}

	// WHEN
	_, err := source.GetInput()

	// THEN
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestFileSourceWithoutTarget(t *testing.T) {
	// GIVEN
	source := &FileSource{
		Id:         SourceId("fan1", "fan1_1"),
		WithTarget: false,
	}

	// WHEN
	target, err := source.GetTarget()

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, 0.0, target)
}
