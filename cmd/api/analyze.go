package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appanalysis "github.com/deepfake-detector/api/internal/application/analysis"
	"github.com/deepfake-detector/api/internal/domain/analysis"
)

var (
	analyzeFile  string
	analyzeStore bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify a local video and print the verdict as JSON",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "video file to analyze")
	analyzeCmd.Flags().BoolVar(&analyzeStore, "store", false, "persist retained frames to the configured evidence store")
	_ = analyzeCmd.MarkFlagRequired("file")
}

type analyzeOutput struct {
	Deepfake       bool     `json:"deepfake"`
	Confidence     float64  `json:"confidence"`
	DeepfakeFrames int      `json:"deepfake_frames"`
	FramesAnalyzed int      `json:"frames_analyzed"`
	FrameIDs       []string `json:"frameIds"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadBase()
	if err != nil {
		return err
	}
	c := &components{cfg: cfg, log: log}
	defer c.close()

	ctx := cmd.Context()
	if err := c.openClassifier(); err != nil {
		return err
	}

	var writer analysis.EvidenceWriter
	if analyzeStore {
		if err := c.openDatabase(ctx); err != nil {
			return err
		}
		if err := c.openImages(ctx); err != nil {
			return err
		}
		writer = c.evidenceService()
	}

	svc, err := c.analysisService(writer)
	if err != nil {
		return err
	}

	requestID := "cli-" + uuid.NewString()
	res, err := svc.AnalyzeVideo(ctx, appanalysis.AnalyzeVideoCommand{
		RequestID: requestID,
		Path:      analyzeFile,
		Source:    "cli",
	})
	if err != nil {
		log.Error("analysis failed", zap.String("request_id", requestID), zap.Error(err))
		return fmt.Errorf("analyze %s: %w", analyzeFile, err)
	}

	ids := res.RetainedFrameIDs
	if ids == nil {
		ids = []string{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(analyzeOutput{
		Deepfake:       res.IsDeepfake,
		Confidence:     res.Confidence,
		DeepfakeFrames: res.DeepfakeFrameCount,
		FramesAnalyzed: res.FramesAnalyzed,
		FrameIDs:       ids,
	})
}
