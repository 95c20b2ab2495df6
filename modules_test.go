package worldgen

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestCommandsBuild(t *testing.T) {
	if testing.Short() {
		t.Skip("builds binaries")
	}
	commands := []string{"worldgen", "worldmirror"}

	out := t.TempDir()
	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			cmd := exec.Command("go", "build", "-o", filepath.Join(out, name), "./cmd/"+name)
			cmd.Env = append(os.Environ(), "GOWORK=off")
			output, err := cmd.CombinedOutput()
			if err != nil {
				t.Fatalf("go build ./cmd/%s failed: %v\n%s", name, err, output)
			}
		})
	}
}
