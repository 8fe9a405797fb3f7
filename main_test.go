package expect

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"testing"
)

// TestMain re-executes the test binary as a helper process, when
// GO_TEST_MODE is "helper", for tests that need a real program on the other
// end of the channel.
func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_MODE") == "helper" {
		runHelperProcess()
		return
	}
	os.Exit(m.Run())
}

func runHelperProcess() {
	args := os.Args[1:]
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Helper process requires a command.")
		os.Exit(1)
	}

	switch args[0] {
	case "interactive":
		// echoes lines until "exit" or end of input
		fmt.Println("Interactive mode ready")
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input := strings.TrimRight(scanner.Text(), "\r")
			if input == "exit" {
				fmt.Println("Exiting.")
				os.Exit(0)
			}
			fmt.Printf("ECHO: %s\n", input)
		}
		os.Exit(0)
	case "banner":
		// prints a large block of output, then a prompt
		for i := 0; i < 64; i++ {
			fmt.Printf("%03d %s\n", i, strings.Repeat("=", 72))
		}
		fmt.Print("banner done> ")
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Unknown helper command: %s\n", args[0])
		os.Exit(1)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_TEST_MODE") == "helper" {
		t.Fatalf("TestHelperProcess should not run in helper mode")
	}
}
