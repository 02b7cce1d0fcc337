// Botflow CLI — инструмент командной строки для работы с сессиями
// чат-бота через HTTP API и для локальной проверки шаблонов.
//
// Использование:
//
//	botflow [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	session   Создание и ведение сессий
//	catalog   Отрасли и цели каталога
//	template  Локальная сборка и проверка шаблонов
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Botflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "botflow",
		Short:         "Botflow CLI — templated chat bot sessions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewSessionCmd(clientFn, outputFn),
		cli.NewCatalogCmd(clientFn, outputFn),
		cli.NewTemplateCmd(outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
