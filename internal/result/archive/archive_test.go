package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeUploader struct {
	puts map[string]string
	fail map[string]error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{puts: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeUploader) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := *params.Key
	if err, ok := f.fail[key]; ok {
		return nil, err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.puts[key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func writeResultDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "benchmark_b1")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "results.json"), []byte(`{"benchmark_id":"b1"}`), 0o644); err != nil {
		t.Fatalf("write results.json: %v", err)
	}
	scriptsDir := filepath.Join(dir, "scripts")
	if err := os.Mkdir(scriptsDir, 0o755); err != nil {
		t.Fatalf("mkdir scripts: %v", err)
	}
	if err := os.WriteFile(filepath.Join(scriptsDir, "s1.js"), []byte("export default function() {}\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return dir
}

func TestUploadPutsEveryFileUnderPrefix(t *testing.T) {
	dir := writeResultDir(t)
	uploader := newFakeUploader()
	a := New(uploader, "my-bucket", "/benchmarks/")

	if err := a.Upload(context.Background(), dir); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	want := map[string]string{
		"benchmarks/benchmark_b1/results.json":  `{"benchmark_id":"b1"}`,
		"benchmarks/benchmark_b1/scripts/s1.js": "export default function() {}\n",
	}
	for key, content := range want {
		got, ok := uploader.puts[key]
		if !ok {
			t.Errorf("expected key %s to be uploaded, got keys %v", key, keysOf(uploader.puts))
			continue
		}
		if got != content {
			t.Errorf("key %s: got %q, want %q", key, got, content)
		}
	}
}

func TestUploadCollectsPerFileFailuresWithoutAborting(t *testing.T) {
	dir := writeResultDir(t)
	uploader := newFakeUploader()
	uploader.fail["benchmarks/benchmark_b1/scripts/s1.js"] = errors.New("network error")
	a := New(uploader, "my-bucket", "benchmarks")

	err := a.Upload(context.Background(), dir)
	if err == nil {
		t.Fatal("expected an error summarizing the failed upload")
	}
	if _, ok := uploader.puts["benchmarks/benchmark_b1/results.json"]; !ok {
		t.Error("expected results.json to still be uploaded despite the script failure")
	}
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
