package versions_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openbridge/objectsync/internal/versions"
)

func TestGetVersionInfo(t *testing.T) {
	t.Parallel()

	info := versions.GetVersionInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}
