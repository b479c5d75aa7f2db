package notification_test

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// swag はビルドに組み込まれていないので、アノテーションは godoc に残さない
func TestHandlerDocs_NoSwaggerAnnotations(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	more, err := filepath.Glob("../unsubscribe/*.go")
	require.NoError(t, err)
	files = append(files, more...)
	files = append(files, "../../../../cmd/api/main.go")

	for _, f := range files {
		if strings.HasSuffix(f, "_test.go") {
			continue
		}
		parsed, err := parser.ParseFile(token.NewFileSet(), f, nil, parser.ParseComments)
		require.NoError(t, err, f)
		for _, cg := range parsed.Comments {
			for _, c := range cg.List {
				assert.NotContains(t, c.Text, "// @", "%s: %s", f, c.Text)
			}
		}
	}
}
