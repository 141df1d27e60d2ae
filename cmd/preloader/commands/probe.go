package commands

import (
	"fmt"

	"pacs-preloader/lib/dompage"
	"pacs-preloader/lib/scrapers/pacs"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the hosting page for an authenticated session.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		config, err := loadConfig()
		if err != nil {
			fatal("failed to load configuration", err)
		}
		agent, err := dompage.NewAgent(dompage.AgentOptions{
			BaseUrl: config.AgentBaseUrl,
		})
		if err != nil {
			fatal("failed to create page agent", err)
		}

		doc, err := dompage.Locate(ctx, agent, pacs.SearchInputName)
		if err != nil {
			fatal("failed to locate hosting document", err)
		}
		session, ok, err := pacs.ProbeSession(ctx, doc)
		if err != nil {
			fatal("failed to probe session", err)
		}
		if !ok {
			fmt.Println("no session present; log into the imaging browser first")
			return
		}
		fmt.Printf("session present for user %s\n", session.UserID)
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
