package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knoguchi/tender/internal/service"
	"github.com/knoguchi/tender/internal/source"
)

var (
	ingestUploadedBy string
	ingestProjectID  int64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <url-or-path>",
	Short: "Ingest one tender PDF and print the result",
	Long: `Runs the ingestion pipeline once without starting the servers.

The argument may be an http(s) URL or a local file path. Pass --project-id
to store the file as a new version of an existing project.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestUploadedBy, "uploaded-by", "", "uploader recorded on the file")
	ingestCmd.Flags().Int64Var(&ingestProjectID, "project-id", 0, "external id of an existing project")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger, source.WithLocalFiles())
	if err != nil {
		return err
	}
	defer a.Close()

	req := service.IngestRequest{
		FileURL:    args[0],
		UploadedBy: ingestUploadedBy,
	}
	if cmd.Flags().Changed("project-id") {
		req.ProjectID = &ingestProjectID
	}

	res, err := a.ingestion.Ingest(ctx, req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
