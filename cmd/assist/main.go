// Command assist is the terminal front-end for MMD ASSIST: text chat
// with web grounding, an image studio, live voice, and a radio player.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MohammadTaha536/mmd536/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:           "assist",
		Short:         "MMD ASSIST terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; real env vars win
			_ = godotenv.Load()

			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			logger := config.NewLogger(env.LogLevel)

			app, err := newApp(env, logger)
			if err != nil {
				return err
			}
			defer app.close()
			return app.run()
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "assist:", err)
		os.Exit(1)
	}
}
