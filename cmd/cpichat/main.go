package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/cpichat/pkg/doc"
	"github.com/go-go-golems/cpichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/glazed/pkg/help"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "cpichat",
	Short: "cpichat is a chat assistant for SAP CPI Groovy scripts",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		err := clay.InitLogger()
		cobra.CheckErr(err)
	},
	RunE:         runChat,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	helpSystem := help.NewHelpSystem()
	err := doc.AddDocToHelpSystem(helpSystem)
	if err != nil {
		panic(err)
	}

	helpFunc, usageFunc := help.GetCobraHelpUsageFuncs(helpSystem)
	helpTemplate, usageTemplate := help.GetCobraHelpUsageTemplates(helpSystem)

	rootCmd.SetHelpFunc(helpFunc)
	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetHelpTemplate(helpTemplate)
	rootCmd.SetUsageTemplate(usageTemplate)

	helpCmd := help.NewCobraHelpCommand(helpSystem)
	rootCmd.SetHelpCommand(helpCmd)

	rootCmd.PersistentFlags().Bool("verbose", false, "Log every message going through the event router")
	rootCmd.PersistentFlags().Bool("plain", false, "Use the line based chat even on a terminal")
	rootCmd.PersistentFlags().Bool("dump-events", false, "Print every conversation event as JSON and the transcript at exit to stderr (line based chat only)")

	// the chat flags live on both commands since the root command runs the chat
	for _, cmd := range []*cobra.Command{rootCmd, chatCmd} {
		err = settings.AddFlags(cmd)
		if err != nil {
			panic(err)
		}
	}

	err = clay.InitViper("cpichat", rootCmd)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing config: %s\n", err)
		os.Exit(1)
	}
	// log output shares the terminal with the chat, keep it quiet unless asked
	viper.SetDefault("log-level", "warn")
	err = clay.InitLogger()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logger: %s\n", err)
		os.Exit(1)
	}

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	rootCmd.AddCommand(chatCmd, renderCmd)
}
