package output

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
)

// Global printer instance for convenience functions
var (
	globalPrinter *Printer
	globalMu      sync.RWMutex
)

func init() {
	globalPrinter = NewPrinter()
}

// GetGlobalPrinter returns the current global printer instance.
func GetGlobalPrinter() *Printer {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalPrinter
}

// ConfigureGlobal configures the global printer with the given options.
func ConfigureGlobal(options ...Option) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalPrinter = NewPrinter(options...)
}

// Println outputs text with newline using the global printer.
func Println(text string) {
	GetGlobalPrinter().Println(text)
}

// Error outputs error text using the global printer.
func Error(text string) {
	GetGlobalPrinter().Error(text)
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) == os.ModeCharDevice
}

// SupportsColor reports whether stdout can show colour. NO_COLOR disables it.
func SupportsColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return IsTerminal() && termenv.NewOutput(os.Stdout).ColorProfile() != termenv.Ascii
}
