package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terralab/landcover-cli/internal/classify"
	"github.com/terralab/landcover-cli/internal/model"
	"github.com/terralab/landcover-cli/internal/points"
	"github.com/terralab/landcover-cli/internal/resilience"
)

var (
	classifyJobPath    string
	classifyPointsPath string
	classifyItemURL    string
	classifyOutput     string
	classifyTrees      int
	classifyNoIndices  bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Run one classification job",
	Long:  "Samples training points from a STAC scene, trains a random forest and writes a classified GeoTIFF. The result summary is printed to stdout as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		job, err := buildJob()
		if err != nil {
			return err
		}

		// Run history is best effort: a broken store never blocks a run.
		var runID string
		st, err := initStore(ctx)
		if err != nil {
			zap.L().Warn("run history unavailable", zap.Error(err))
		} else {
			defer st.Close()
			if run, err := st.CreateRun(ctx, *job); err != nil {
				zap.L().Warn("recording run failed", zap.Error(err))
			} else {
				runID = run.ID
			}
		}

		result, err := classify.New(cfg).Run(ctx, *job)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err != nil {
			// The pipeline never retries, so a transient marker means nothing
			// in the final record.
			final := resilience.Permanent(err)
			if st != nil && runID != "" {
				if ferr := st.FailRun(ctx, runID, final.Error()); ferr != nil {
					zap.L().Warn("recording run failure failed", zap.Error(ferr))
				}
			}
			_ = enc.Encode(model.ErrorRecord{
				Error:     final.Error(),
				Traceback: eris.ToString(final, true),
			})
			return final
		}

		if st != nil && runID != "" {
			if cerr := st.CompleteRun(ctx, runID, result); cerr != nil {
				zap.L().Warn("recording run result failed", zap.Error(cerr))
			}
		}
		return enc.Encode(result)
	},
}

// buildJob assembles the job from the --job file and flag overrides. Inline
// training data in the job file wins over --points.
func buildJob() (*model.Job, error) {
	var job model.Job
	if classifyJobPath != "" {
		data, err := os.ReadFile(classifyJobPath)
		if err != nil {
			return nil, eris.Wrapf(err, "read job file %s", classifyJobPath)
		}
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, eris.Wrapf(err, "parse job file %s", classifyJobPath)
		}
	}

	if len(job.TrainingData) == 0 && classifyPointsPath != "" {
		pts, err := points.Load(classifyPointsPath)
		if err != nil {
			return nil, err
		}
		job.TrainingData = pts
	}
	if classifyItemURL != "" {
		job.STACItemURL = classifyItemURL
	}
	if classifyOutput != "" {
		job.OutputPath = classifyOutput
	}
	if classifyTrees > 0 {
		job.NumTrees = classifyTrees
	}
	if classifyNoIndices {
		v := false
		job.IncludeIndices = &v
	}
	return &job, nil
}

func init() {
	classifyCmd.Flags().StringVar(&classifyJobPath, "job", "", "path to a JSON job file")
	classifyCmd.Flags().StringVar(&classifyPointsPath, "points", "", "training points file (csv, geojson, xlsx, shp)")
	classifyCmd.Flags().StringVar(&classifyItemURL, "item", "", "STAC item URL of the scene to classify")
	classifyCmd.Flags().StringVar(&classifyOutput, "output", "", "output GeoTIFF path")
	classifyCmd.Flags().IntVar(&classifyTrees, "trees", 0, "forest size (default from config)")
	classifyCmd.Flags().BoolVar(&classifyNoIndices, "no-indices", false, "train on raw bands only, without spectral indices")
	rootCmd.AddCommand(classifyCmd)
}
