package cli

import (
	"fmt"
	"log/slog"
	"os"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

func Main() {
	if err := main_(); err != nil {
		os.Exit(1)
	}
}

func main_() (err error) {
	initRoot(rootCmd)
	rootCmd.AddCommand(quickCmd)
	rootCmd.AddCommand(deepCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(monitoringCmd)
	rootCmd.AddCommand(versionCmd)
	err = rootCmd.Execute()
	if err != nil {
		fmt.Println(err)
		return err
	}
	return
}
