package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/praetorian-inc/appalyzer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "appalyzer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func testMatch(path, secret string, start int) *types.Match {
	return &types.Match{
		RuleName:    "Generic API Key",
		RelPath:     filepath.Base(path),
		AbsPath:     path,
		Secret:      secret,
		Snippet:     "x " + secret + " y",
		Span:        types.OffsetSpan{Start: start, End: start + len(secret)},
		SnippetSpan: types.OffsetSpan{Start: start - 2, End: start + len(secret) + 2},
		Fingerprint: types.ComputeFingerprint(path, secret),
	}
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	s, err := New(Config{Path: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(Config{Path: filepath.Join(t.TempDir(), "scan.db")})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLiteStore{}, s)
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			started := time.Date(2024, 3, 5, 9, 7, 0, 0, time.UTC)
			scan := &Scan{ID: uuid.NewString(), Root: "/tmp/app", ReportPath: "/tmp/app/report.out", StartedAt: started}
			require.NoError(t, s.BeginScan(scan))

			result := &types.RuleResult{
				RuleName: "Generic API Key",
				Status:   types.RuleCompleted,
				Matches: []*types.Match{
					testMatch("/tmp/app/a.xml", "api_key=XYZ", 10),
					testMatch("/tmp/app/b.xml", "api_key=QRS", 4),
				},
				Duration:  1500 * time.Millisecond,
				FilesRead: 2,
			}
			require.NoError(t, s.AddRuleResult(scan.ID, result))

			matches, err := s.GetMatches(scan.ID)
			require.NoError(t, err)
			require.Len(t, matches, 2)
			assert.Equal(t, *result.Matches[0], *matches[0])
			assert.Equal(t, *result.Matches[1], *matches[1])

			finished := started.Add(time.Minute)
			require.NoError(t, s.FinishScan(scan.ID, finished))

			scans, err := s.GetScans()
			require.NoError(t, err)
			require.Len(t, scans, 1)
			assert.Equal(t, scan.ID, scans[0].ID)
			assert.Equal(t, "/tmp/app", scans[0].Root)
			assert.True(t, started.Equal(scans[0].StartedAt))
			assert.True(t, finished.Equal(scans[0].FinishedAt))
		})
	}
}

func TestStore_DuplicateMatchesIgnored(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			scan := &Scan{ID: uuid.NewString(), StartedAt: time.Now()}
			require.NoError(t, s.BeginScan(scan))

			m := testMatch("/tmp/app/a.xml", "token=1", 0)
			result := &types.RuleResult{RuleName: "Generic API Key", Matches: []*types.Match{m}}

			require.NoError(t, s.AddRuleResult(scan.ID, result))
			require.NoError(t, s.AddRuleResult(scan.ID, result))

			matches, err := s.GetMatches(scan.ID)
			require.NoError(t, err)
			assert.Len(t, matches, 1)
		})
	}
}

func TestStore_FailedRuleRecorded(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			scan := &Scan{ID: uuid.NewString(), StartedAt: time.Now()}
			require.NoError(t, s.BeginScan(scan))

			result := &types.RuleResult{RuleName: "bad", Status: types.RuleError, Err: errors.New("invalid pattern")}
			require.NoError(t, s.AddRuleResult(scan.ID, result))

			matches, err := s.GetMatches(scan.ID)
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestStore_ScansIsolated(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			first := &Scan{ID: uuid.NewString(), StartedAt: time.Now()}
			second := &Scan{ID: uuid.NewString(), StartedAt: time.Now().Add(time.Second)}
			require.NoError(t, s.BeginScan(first))
			require.NoError(t, s.BeginScan(second))

			m := testMatch("/a", "s", 0)
			require.NoError(t, s.AddRuleResult(first.ID, &types.RuleResult{RuleName: "R", Matches: []*types.Match{m}}))
			require.NoError(t, s.AddRuleResult(second.ID, &types.RuleResult{RuleName: "R", Matches: []*types.Match{m}}))

			for _, id := range []string{first.ID, second.ID} {
				matches, err := s.GetMatches(id)
				require.NoError(t, err)
				assert.Len(t, matches, 1)
			}

			scans, err := s.GetScans()
			require.NoError(t, err)
			require.Len(t, scans, 2)
			assert.Equal(t, first.ID, scans[0].ID)
			assert.True(t, scans[0].FinishedAt.IsZero())
		})
	}
}

func TestStore_UnknownScan(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.FinishScan("missing", time.Now()))

			matches, err := s.GetMatches("missing")
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestMemoryStore_DuplicateScanID(t *testing.T) {
	s := NewMemory()
	scan := &Scan{ID: "same"}
	require.NoError(t, s.BeginScan(scan))
	assert.Error(t, s.BeginScan(scan))
}

func TestSQLite_DuplicateScanID(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "dup.db"))
	require.NoError(t, err)
	defer s.Close()

	scan := &Scan{ID: "same", StartedAt: time.Now()}
	require.NoError(t, s.BeginScan(scan))
	assert.Error(t, s.BeginScan(scan))
}

func TestSQLite_SchemaIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	scan := &Scan{ID: uuid.NewString(), StartedAt: time.Now()}
	require.NoError(t, s.BeginScan(scan))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("SELECT version FROM schema_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	scans, err := s.GetScans()
	require.NoError(t, err)
	assert.Len(t, scans, 1)
}
