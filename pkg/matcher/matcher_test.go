package matcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/praetorian-inc/appalyzer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpus(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	root := t.TempDir()
	var paths []string
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		paths = append(paths, path)
	}
	return root, paths
}

func TestUnit_FindsDistinctMatchesPerFile(t *testing.T) {
	root, paths := writeCorpus(t, map[string]string{
		"a.txt": "api_key=XYZ\napi_key=XYZ\napi_key=QRS\n",
	})

	u := &Unit{
		Rule:  &types.Rule{Name: "Key", Pattern: `api_key=\w+`},
		Files: paths,
		Root:  root,
	}
	result := u.Run(context.Background())

	require.Equal(t, types.RuleCompleted, result.Status)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, "api_key=XYZ", result.Matches[0].Secret)
	assert.Equal(t, "api_key=QRS", result.Matches[1].Secret)
	assert.Equal(t, "a.txt", result.Matches[0].RelPath)
	assert.Equal(t, "Key", result.Matches[0].RuleName)
	assert.Equal(t, 1, result.FilesRead)
}

func TestUnit_SameSecretInTwoFiles(t *testing.T) {
	root, paths := writeCorpus(t, map[string]string{
		"a.txt":     "token=abc",
		"sub/b.txt": "token=abc",
	})

	u := &Unit{
		Rule:  &types.Rule{Name: "Token", Pattern: `token=\w+`},
		Files: paths,
		Root:  root,
	}
	result := u.Run(context.Background())

	require.Len(t, result.Matches, 2)
	assert.NotEqual(t, result.Matches[0].Fingerprint, result.Matches[1].Fingerprint)
}

func TestUnit_InvalidPattern(t *testing.T) {
	_, paths := writeCorpus(t, map[string]string{"a.txt": "anything"})

	u := &Unit{
		Rule:  &types.Rule{Name: "bad", Pattern: "("},
		Files: paths,
	}
	result := u.Run(context.Background())

	assert.Equal(t, types.RuleError, result.Status)
	assert.True(t, errors.Is(result.Err, ErrInvalidPattern))
	assert.True(t, result.Empty())
	assert.Equal(t, 0, result.FilesRead)
}

func TestUnit_UnreadableFileSkipped(t *testing.T) {
	root, paths := writeCorpus(t, map[string]string{"good.txt": "password=hunter2"})
	paths = append([]string{filepath.Join(root, "gone.txt")}, paths...)

	u := &Unit{
		Rule:  &types.Rule{Name: "Password", Pattern: `password=\w+`},
		Files: paths,
		Root:  root,
	}
	result := u.Run(context.Background())

	assert.Equal(t, types.RuleCompleted, result.Status)
	assert.Equal(t, 1, result.FilesFailed)
	assert.Equal(t, 1, result.FilesRead)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "good.txt", result.Matches[0].RelPath)
}

func TestUnit_SpansAreValid(t *testing.T) {
	content := "héllo\n" + "x" + "secret=ü1\n" + "secret=two"
	root, paths := writeCorpus(t, map[string]string{"a.txt": content})

	for _, engine := range []Engine{EngineRegexp2, EngineRE2} {
		t.Run(string(engine), func(t *testing.T) {
			u := &Unit{
				Rule:    &types.Rule{Name: "S", Pattern: `secret=\S+`},
				Files:   paths,
				Root:    root,
				Options: Options{Engine: engine},
			}
			result := u.Run(context.Background())

			require.Len(t, result.Matches, 2)
			for _, m := range result.Matches {
				assert.True(t, m.Span.Valid(len(content)))
				assert.True(t, m.SnippetSpan.Valid(len(content)))
				assert.Equal(t, m.Secret, content[m.Span.Start:m.Span.End])
				assert.Contains(t, m.Snippet, m.Secret)
			}
		})
	}
}

func TestUnit_EmptyMatchesIgnored(t *testing.T) {
	root, paths := writeCorpus(t, map[string]string{"a.txt": "abc"})

	u := &Unit{
		Rule:  &types.Rule{Name: "Empty", Pattern: `x*`},
		Files: paths,
		Root:  root,
	}
	result := u.Run(context.Background())

	assert.Equal(t, types.RuleCompleted, result.Status)
	assert.Empty(t, result.Matches)
}

func TestUnit_RerunIsIdempotent(t *testing.T) {
	root, paths := writeCorpus(t, map[string]string{
		"a.txt": "key=1 key=2 key=1",
		"b.txt": "key=3",
	})
	u := &Unit{
		Rule:  &types.Rule{Name: "K", Pattern: `key=\d`},
		Files: paths,
		Root:  root,
	}

	first := u.Run(context.Background())
	second := u.Run(context.Background())

	require.Equal(t, len(first.Matches), len(second.Matches))
	for i := range first.Matches {
		assert.Equal(t, first.Matches[i].Fingerprint, second.Matches[i].Fingerprint)
	}
}

func TestUnit_CancelledContextStopsBetweenFiles(t *testing.T) {
	root, paths := writeCorpus(t, map[string]string{"a.txt": "key=1", "b.txt": "key=2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := &Unit{
		Rule:  &types.Rule{Name: "K", Pattern: `key=\d`},
		Files: paths,
		Root:  root,
	}
	result := u.Run(ctx)

	assert.Equal(t, 0, result.FilesRead)
	assert.Empty(t, result.Matches)
}

func TestUnit_UsesProvidedSource(t *testing.T) {
	src := &countingSource{data: map[string]string{"/virtual/a": "token=zzz"}}

	u := &Unit{
		Rule:   &types.Rule{Name: "T", Pattern: `token=\w+`},
		Files:  []string{"/virtual/a"},
		Root:   "/virtual",
		Source: src,
	}
	result := u.Run(context.Background())

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "a", result.Matches[0].RelPath)
	assert.Equal(t, int64(1), src.reads.Load())
}
