package main

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval/ingest"
	"github.com/mohammad-safakhou/studybuddy/internal/runtime"
	"github.com/spf13/cobra"
)

func ingestCMD() *cobra.Command {
	var dir string
	var urls []string
	var cfgPath string

	var cmd = &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the retrieval corpus from a documents directory and/or web pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx, cancel := runtime.SignalContext(context.Background(), "ingest")
			defer cancel()

			in := ingest.New(cfg.Ingest)
			var docs []string
			var err error
			if dir != "" || len(urls) == 0 {
				if dir == "" {
					dir = cfg.Ingest.DocumentsDir
				}
				docs, err = in.IngestDir(ctx, dir)
			} else {
				docs, err = retrieval.LoadCorpus(cfg.Retrieval.CorpusPath)
			}
			if err != nil {
				return err
			}
			for _, u := range urls {
				chunks, err := in.IngestURL(ctx, u)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", u, err)
				}
				docs = append(docs, chunks...)
			}
			if err := retrieval.SaveCorpus(cfg.Retrieval.CorpusPath, docs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d documents to %s\n", len(docs), cfg.Retrieval.CorpusPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "documents directory (default ingest.documents_dir)")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "web page to fetch and append (repeatable)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
