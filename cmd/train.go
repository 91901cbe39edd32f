package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/verdantlabs/greencoach/config"
	"github.com/verdantlabs/greencoach/internal/trainer/core"
	"github.com/verdantlabs/greencoach/internal/trainer/telemetry"
)

func trainCMD() *cobra.Command {
	var industry string
	var jurisdiction string
	var difficulty string
	var output string

	var train = &cobra.Command{
		Use:   "train",
		Short: "Run a single training session and write the report to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			llm, err := core.NewLLMProvider(cfg.LLM)
			if err != nil {
				return err
			}
			searchTool := core.NewSerperSearch(
				cfg.Search.SerperAPIKey, cfg.Search.Endpoint,
				cfg.Search.GL, cfg.Search.HL, cfg.Search.MaxResults, cfg.Search.Timeout)
			tele := telemetry.NewTelemetry(cfg.Telemetry)
			defer tele.Shutdown()

			emitter := core.NewEmitter()
			emitter.Register(core.ListenerFunc(func(ev core.Event) {
				if ev.Stage != "" {
					fmt.Printf("[%s] %s: %s\n", ev.Type, ev.Stage, ev.Message)
				} else {
					fmt.Printf("[%s] %s\n", ev.Type, ev.Message)
				}
				if ev.Summary != "" {
					fmt.Printf("    %s\n", ev.Summary)
				}
			}))

			ctrl := core.NewController(cfg, llm, searchTool, tele, emitter)
			rc := core.RunConfiguration{
				SessionID:      core.NewSessionID(time.Now()),
				Industry:       industry,
				Jurisdiction:   jurisdiction,
				Difficulty:     difficulty,
				LearnerProfile: core.LoadLearnerProfile(cfg.Training.KnowledgeDir),
				CreatedAt:      time.Now(),
			}

			report, err := ctrl.Start(context.Background(), rc)
			if err != nil {
				return fmt.Errorf("training run failed: %w", err)
			}

			path := output
			if path == "" {
				path = fmt.Sprintf("training_report_%s.md", report.SessionID)
			}
			if err := os.WriteFile(path, []byte(core.RenderMarkdown(report)), 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Printf("Report written to %s\n", path)
			return nil
		},
	}
	train.Flags().StringVar(&industry, "industry", "Technology", "industry for the scenario")
	train.Flags().StringVar(&jurisdiction, "jurisdiction", "EU", "regulatory jurisdiction")
	train.Flags().StringVar(&difficulty, "difficulty", "Beginner", "difficulty level")
	train.Flags().StringVarP(&output, "output", "o", "", "report output path")

	return train
}
