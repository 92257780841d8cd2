package archive

import (
	"os"
	"testing"
)

// writeFile 创建占位文件
func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("writeFile failed: %v", err)
	}
}
