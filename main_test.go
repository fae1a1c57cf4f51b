package main

import (
	"bytes"
	"os"
	"os/exec"
	"testing"
)

// TestMain_Help runs main in a subprocess, since cmd.Execute may call os.Exit
func TestMain_Help(t *testing.T) {
	if os.Getenv("TEST_MAIN_HELP") == "1" {
		os.Args = []string{"ultrasonic", "--help"}
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMain_Help")
	cmd.Env = append(os.Environ(), "TEST_MAIN_HELP=1")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	if err := cmd.Run(); err != nil {
		t.Fatalf("main --help failed: %v\n%s", err, stdout.String())
	}
	for _, want := range []string{"listen", "beacon", "devices"} {
		if !bytes.Contains(stdout.Bytes(), []byte(want)) {
			t.Errorf("help output missing %q:\n%s", want, stdout.String())
		}
	}
}
