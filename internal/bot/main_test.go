package bot

import (
	"os"
	"testing"

	"github.com/annel0/tower-stack/internal/logging"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "tower-logs")
	if err == nil {
		logging.SetLogDir(dir)
	}
	code := m.Run()
	logging.CloseComponents()
	if err == nil {
		os.RemoveAll(dir)
	}
	os.Exit(code)
}
