package fireflower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDepFileSingleLine(t *testing.T) {
	deps, err := ParseDepFile(strings.NewReader("build/main.o: src/main.cpp include/foo.h\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.cpp", "include/foo.h"}, deps)
}

func TestParseDepFileContinuation(t *testing.T) {
	data := "build/main.o: src/main.cpp \\\n  include/foo.h \\\n  include/bar.h\n"
	deps, err := ParseDepFile(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.cpp", "include/foo.h", "include/bar.h"}, deps)
}

func TestParseDepFileNoDeps(t *testing.T) {
	deps, err := ParseDepFile(strings.NewReader("build/main.o:\n"))
	require.NoError(t, err)
	assert.Empty(t, deps)
}
