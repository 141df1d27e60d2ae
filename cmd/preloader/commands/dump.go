package commands

import (
	"database/sql"
	"os"
	"time"

	"pacs-preloader/lib/preloadlog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var dumpLimit int

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the most recent preload journal entries.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		config, err := loadConfig()
		if err != nil {
			fatal("failed to load configuration", err)
		}
		db, err := sql.Open("sqlite", config.JournalPath)
		if err != nil {
			fatal("failed to open preload journal", err)
		}
		defer db.Close()

		journal := preloadlog.NewStore(db)
		entries, err := journal.Recent(ctx, dumpLimit)
		if err != nil {
			fatal("failed to read preload journal", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Patient", "Study UID", "Images", "Date", "Completed"})
		for _, entry := range entries {
			t.AppendRow(table.Row{
				entry.PatientKey,
				entry.StudyUID,
				entry.ImageCount,
				entry.StudyDate,
				entry.CompletedAt.Format(time.RFC3339),
			})
		}
		t.Render()
	},
}

func init() {
	dumpCmd.Flags().IntVar(&dumpLimit, "limit", 25, "maximum entries to print")
	rootCmd.AddCommand(dumpCmd)
}
