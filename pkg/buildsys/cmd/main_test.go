package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JacobCoffee/python-source-builds/pkg/buildsys"
)

func TestPrintTaskList_DeclarationOrderAndDescriptions(t *testing.T) {
	t.Parallel()

	list := buildsys.TaskList{
		"install":  {Short: "install", Desc: "Install dependencies", Pos: 1},
		"clean":    {Short: "clean", Desc: "Remove build artifacts", Pos: 0},
		"frontend": {Short: "frontend", Desc: "Compile the stylesheet", Pos: 3},
		"internal": {Short: "internal", Desc: "not listed", Pos: 2, Hidden: true},
		"secret":   {Short: "secret", Pos: 4},
	}

	buffer := strings.Builder{}
	printTaskList(&buffer, list)
	output := buffer.String()

	cleanIdx := strings.Index(output, "clean:")
	installIdx := strings.Index(output, "install:")
	frontendIdx := strings.Index(output, "frontend:")

	require.Greater(t, cleanIdx, -1)
	require.Greater(t, installIdx, -1)
	require.Greater(t, frontendIdx, -1)

	// declaration order, not alphabetical
	assert.Less(t, cleanIdx, installIdx)
	assert.Less(t, installIdx, frontendIdx)

	assert.Contains(t, output, "Install dependencies")
	assert.Contains(t, output, "Remove build artifacts")

	// hidden and undescribed tasks are omitted
	assert.NotContains(t, output, "internal")
	assert.NotContains(t, output, "secret")
}
