// Package cli holds the crmctl commands.
package cli

import (
	"fmt"

	"github.com/emanuelmabtis/meu-crm/internal/config"
	"github.com/emanuelmabtis/meu-crm/internal/crmclient"
	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// AddGlobalFlags registers the flags every command reads.
func AddGlobalFlags(root *cobra.Command, cfg config.Config) {
	root.PersistentFlags().String("api", cfg.APIURL, "CRM API base URL")
	root.PersistentFlags().String("log-level", "error", "log level (debug, info, warn, error)")
	root.PersistentFlags().Duration("persist-timeout", cfg.PersistTimeout, "timeout for each stage change request")
}

func clientFromFlags(cmd *cobra.Command) (*crmclient.Client, error) {
	apiURL, _ := cmd.Flags().GetString("api")
	return crmclient.New(apiURL, nil)
}

func loggerFromFlags(cmd *cobra.Command) (*zap.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	logger, err := config.NewLogger(level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// mountBoard loads the remote board into a local pipeline.
func mountBoard(cmd *cobra.Command, logger *zap.Logger, notifier pipeline.Notifier) (*pipeline.Board, error) {
	client, err := clientFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	timeout, _ := cmd.Flags().GetDuration("persist-timeout")
	if timeout < 0 {
		timeout = 0
	}
	opts := []pipeline.Option{
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithPersistTimeout(timeout),
	}
	if notifier != nil {
		opts = append(opts, pipeline.WithNotifier(notifier))
	}
	return pipeline.Mount(cmd.Context(), client, opts...)
}
