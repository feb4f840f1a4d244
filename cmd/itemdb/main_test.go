package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"itemdb/internal/archive"
	"itemdb/internal/config"
	"itemdb/internal/infra/journal/httpjournal"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idUser = "11111111-0000-1000-8000-a0a0a0a0a0a0"
	idBook = "22222222-0000-1000-8000-a0a0a0a0a0a0"
	idAuth = "33333333-0000-1000-8000-a0a0a0a0a0a0"
	idAttr = "44444444-0000-1000-8000-a0a0a0a0a0a0"
	idE1   = "55555555-0000-1000-8000-a0a0a0a0a0a0"
	idE2   = "66666666-0000-1000-8000-a0a0a0a0a0a0"
)

const aprilDoc = `{
  "format": "2005_APRIL_CHRONOLOGICAL_LIST",
  "timestamp": "1112000000000",
  "data": [
    {"Item": {"uuid": "` + idBook + `", "userstamp": "` + idUser + `", "timestamp": "1112000000001"}},
    {"Value": {"uuid": "` + idE1 + `", "userstamp": "` + idUser + `", "timestamp": "1112000000002",
               "item": "` + idBook + `", "attribute": "` + idAttr + `", "type": "text", "value": "Dune"}},
    {"Value": {"uuid": "` + idE2 + `", "userstamp": "` + idUser + `", "timestamp": "1112000000003",
               "item": "` + idBook + `", "attribute": "` + idAttr + `", "previousValue": "` + idE1 + `",
               "type": "uuid", "value": "` + idAuth + `"}},
    {"Vote": {"uuid": "77777777-0000-1000-8000-a0a0a0a0a0a0", "userstamp": "` + idUser + `", "timestamp": "1112000000004",
              "record": "` + idE2 + `", "retainFlag": "false"}},
    {"Ordinal": {"uuid": "88888888-0000-1000-8000-a0a0a0a0a0a0", "userstamp": "` + idUser + `", "timestamp": "1112000000005",
                 "record": "` + idBook + `", "ordinalNumber": 2.5}}
  ],
  "users": [{"uuid": "` + idUser + `", "password": null}]
}`

// brokenChainDoc supersedes an entry filed under another item.
const brokenChainDoc = `{
  "format": "2005_APRIL_CHRONOLOGICAL_LIST",
  "timestamp": "1112000000000",
  "data": [
    {"Value": {"uuid": "` + idE1 + `", "userstamp": "` + idUser + `", "timestamp": "1112000000002",
               "item": "` + idBook + `", "attribute": "` + idAttr + `", "type": "text", "value": "Dune"}},
    {"Value": {"uuid": "` + idE2 + `", "userstamp": "` + idUser + `", "timestamp": "1112000000003",
               "item": "` + idAuth + `", "attribute": "` + idAttr + `", "previousValue": "` + idE1 + `",
               "type": "text", "value": "Herbert"}}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes the CLI against an isolated sqlite journal.
func run(t *testing.T, dbPath string, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("ITEMDB_JOURNAL_DRIVER", "sqlite")
	t.Setenv("ITEMDB_SQLITE_PATH", dbPath)
	t.Setenv("ITEMDB_ARCHIVE_SYNC", "true")
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestInspectSummarisesDocuments(t *testing.T) {
	db := filepath.Join(t.TempDir(), "itemdb.db")
	path := writeFile(t, "april.json", aprilDoc)

	code, out, errOut := run(t, db, "inspect", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "2005_APRIL_CHRONOLOGICAL_LIST")
	assert.Contains(t, out, "1 item, 2 entries, 1 vote, 1 ordinal, 0 user records, and 1 password")
	assert.Contains(t, out, "written 2005-03-28T08:53:20Z")

	bad := writeFile(t, "bad.json", `{"format": "2004_PROTOTYPE"}`)
	code, _, errOut = run(t, db, "inspect", path, bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "1 file could not be decoded")

	code, _, _ = run(t, db, "inspect")
	assert.Equal(t, 1, code, "at least one file is required")
}

func TestConvertWritesCurrentGeneration(t *testing.T) {
	db := filepath.Join(t.TempDir(), "itemdb.db")
	in := writeFile(t, "april.json", aprilDoc)
	out := filepath.Join(t.TempDir(), "june.json")

	code, _, errOut := run(t, db, "convert", "--check", in, out)
	require.Equal(t, 0, code, errOut)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	converted, err := archive.DecodeAny(data)
	require.NoError(t, err)
	original, err := archive.DecodeAny([]byte(aprilDoc))
	require.NoError(t, err)

	assert.Equal(t, archive.Current, converted.Format)
	assert.True(t, original.Timestamp.Equal(converted.Timestamp))
	require.Len(t, converted.Records, len(original.Records))
	for i := range original.Records {
		assert.Equal(t, original.Records[i].RecordID(), converted.Records[i].RecordID())
	}

	code, stdout, _ := run(t, db, "convert", in, "-")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(stdout), "{"))
	assert.Contains(t, stdout, string(archive.Current))
}

func TestConvertCheckRejectsBrokenChains(t *testing.T) {
	db := filepath.Join(t.TempDir(), "itemdb.db")
	in := writeFile(t, "broken.json", brokenChainDoc)
	out := filepath.Join(t.TempDir(), "out.json")

	code, _, errOut := run(t, db, "convert", "--check", in, out)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "previous entry belongs to another item")
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))

	code, _, errOut = run(t, db, "convert", in, out)
	assert.Equal(t, 0, code, errOut)
}

func TestImportThenStats(t *testing.T) {
	db := filepath.Join(t.TempDir(), "itemdb.db")
	doc := writeFile(t, "april.json", aprilDoc)

	code, _, errOut := run(t, db, "import", doc)
	require.Equal(t, 0, code, errOut)

	code, out, errOut := run(t, db, "stats")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, fmt.Sprintf("%-9s %s", "votes", "1"))
	assert.Contains(t, out, fmt.Sprintf("%-9s %s", "ordinals", "1"))
	assert.Contains(t, out, fmt.Sprintf("%-9s %s", "users", "1"))
	assert.Contains(t, out, "loaded in")

	garbage := writeFile(t, "garbage.json", "[1, 2")
	code, _, errOut = run(t, db, "import", garbage)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "decode")
}

func TestBadConfigFails(t *testing.T) {
	db := filepath.Join(t.TempDir(), "itemdb.db")
	cfg := writeFile(t, "itemdb.yaml", "world:\n  filter: DEMOCRATIC\n")
	code, _, errOut := run(t, db, "--config", cfg, "stats")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "load config")
}

func TestServeMuxCarriesJournalAndMetrics(t *testing.T) {
	ctx := context.Background()
	logger, _ := logtest.NewNullLogger()
	backing := archive.NewMemoryJournal()
	srv := httptest.NewServer(newServeMux(backing, prometheus.NewRegistry(), logger))
	defer srv.Close()

	client := httpjournal.NewClient(srv.URL)
	require.NoError(t, client.Append(ctx, []byte(aprilDoc)))
	frags, err := backing.Fragments(ctx)
	require.NoError(t, err)
	assert.Len(t, frags, 1)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `itemdb_http_requests_total{code="204",method="post"} 1`)
}

func TestVerifyJournalRecordsLoad(t *testing.T) {
	ctx := context.Background()
	logger, _ := logtest.NewNullLogger()
	cfg := config.Default()
	a := &app{cfg: cfg, log: logger}

	j := archive.NewMemoryJournal()
	require.NoError(t, j.Append(ctx, []byte(aprilDoc)))
	reg := prometheus.NewRegistry()
	require.NoError(t, verifyJournal(ctx, a, j, reg))
	n, err := promtestutil.GatherAndCount(reg, "itemdb_world_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	broken := archive.NewMemoryJournal()
	require.NoError(t, broken.Append(ctx, []byte(brokenChainDoc)))
	assert.Error(t, verifyJournal(ctx, a, broken, prometheus.NewRegistry()))
}

func TestServeStopsWhenContextEnds(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, http.NotFoundHandler(), logger) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/anything")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestMainReportsExitCode(t *testing.T) {
	var codes []int
	old, oldArgs := exitFunc, os.Args
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc, os.Args = old, oldArgs }()
	t.Setenv("ITEMDB_JOURNAL_DRIVER", "memory")

	os.Args = []string{"itemdb", "inspect", writeFile(t, "april.json", aprilDoc)}
	main()
	os.Args = []string{"itemdb", "inspect", filepath.Join(t.TempDir(), "missing.json")}
	main()
	assert.Equal(t, []int{0, 1}, codes)
}
