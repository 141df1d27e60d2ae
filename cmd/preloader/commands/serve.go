package commands

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pacs-preloader/lib/dompage"
	"pacs-preloader/lib/preloadlog"
	"pacs-preloader/lib/scrapers/pacs"
	"pacs-preloader/lib/storeclient"
	"pacs-preloader/lib/telemetry"
	"pacs-preloader/services/bridge"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the extension bridge API and run the refresh daemon.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		config, err := loadConfig()
		if err != nil {
			fatal("failed to load configuration", err)
		}

		tel, err := telemetry.Setup(ctx, "preloader", config.Telemetry)
		if err != nil {
			fatal("failed to setup telemetry", err)
		}
		defer tel.Shutdown(ctx)
		telemetry.InstrumentPerfStats(ctx)

		journalDB, err := sql.Open("sqlite", config.JournalPath)
		if err != nil {
			fatal("failed to open preload journal", err)
		}
		journal := preloadlog.NewStore(journalDB)
		if err := journal.Init(ctx); err != nil {
			fatal("failed to initialize preload journal", err)
		}

		agent, err := dompage.NewAgent(dompage.AgentOptions{
			BaseUrl: config.AgentBaseUrl,
		})
		if err != nil {
			fatal("failed to create page agent", err)
		}

		store := storeclient.NewClient(storeclient.ClientOptions{
			BaseUrl: config.StorageBaseUrl,
		})
		if err := store.Health(ctx); err != nil {
			slog.WarnContext(ctx, "storage service is unreachable, continuing anyway", "err", err)
		}

		service := bridge.NewService(bridge.ServiceOptions{
			Page:    agent,
			Store:   store,
			Journal: journal,
			Dial: func(session *pacs.Session) (*pacs.Client, error) {
				return pacs.NewClient(pacs.ClientOptions{
					BaseUrl:  config.PacsBaseUrl,
					Session:  session,
					PageSize: config.PageSize,
				})
			},
			Filters: pacs.FilterConfig{
				Regions:    config.Regions,
				Modalities: config.Modalities,
			},
		})

		go service.RunRefreshDaemon(
			ctx,
			time.Duration(config.RefreshIntervalSeconds)*time.Second,
		)

		addr := fmt.Sprintf("127.0.0.1:%d", config.Port)
		slog.Info("serving bridge API", "addr", addr)

		server := &http.Server{Addr: addr, Handler: service.Router()}
		go func() {
			<-ctx.Done()
			server.Close()
		}()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("bridge API server failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
