package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/civic-triage/internal/domain/analysis"
	"github.com/bryanwahyu/civic-triage/internal/infra/inference/local"
)

var (
	modelPath string
	topN      int
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image>",
	Short: "Run the local model on an image file",
	Long: `Classify an image with the local centroid model and print the class scores
plus the normalized result a worker would store on the report.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVar(&modelPath, "model", envOr("LOCAL_MODEL_PATH", "models/civic-centroids.yaml"), "model artifact")
	classifyCmd.Flags().IntVar(&topN, "top", 5, "number of classes to show")
}

func runClassify(cmd *cobra.Command, args []string) error {
	img, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	m, err := local.LoadModel(modelPath)
	if err != nil {
		return err
	}
	feats, err := local.Features(img)
	if err != nil {
		return fmt.Errorf("decode %s: %w", args[0], err)
	}
	preds := m.Classify(feats)
	res := analysis.Normalize(preds).WithSource(analysis.SourceLocal)

	out := cmd.OutOrStdout()
	if isJSONOutput() {
		return printJSON(out, map[string]any{
			"features":    featureMap(feats),
			"predictions": preds,
			"result":      res,
			"category":    analysis.MapCategory(res.Label),
		})
	}

	if topN > 0 && len(preds) > topN {
		preds = preds[:topN]
	}
	table := tablewriter.NewWriter(out)
	table.Header("Label", "Score")
	for _, p := range preds {
		table.Append(p.Label, fmt.Sprintf("%.3f", p.Score))
	}
	if err := table.Render(); err != nil {
		return err
	}

	cat := string(analysis.MapCategory(res.Label))
	if cat == "" {
		cat = color.New(color.FgYellow).Sprint("(no override)")
	}
	fmt.Fprintf(out, "label=%s severity=%.2f confidence=%.2f category=%s\n",
		color.New(color.Bold).Sprint(res.Label), res.Severity, res.Confidence, cat)
	return nil
}

func featureMap(feats []float64) map[string]float64 {
	m := make(map[string]float64, len(feats))
	for i, v := range feats {
		if i < len(local.FeatureNames) {
			m[local.FeatureNames[i]] = v
		}
	}
	return m
}
