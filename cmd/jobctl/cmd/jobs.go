package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/civic-triage/internal/config"
	"github.com/bryanwahyu/civic-triage/internal/domain/jobs"
	"github.com/bryanwahyu/civic-triage/internal/infra/storage"
)

var (
	deadLimit int

	enqReport   string
	enqURL      string
	enqPublicID string
	enqKey      string
	enqBucket   string
	enqFile     string
	configPath  string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth by state",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var deadCmd = &cobra.Command{
	Use:   "dead",
	Short: "List dead jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDead,
}

var getCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Re-drive a dead job with a fresh attempt budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue analysis for a report image",
	Long: `Enqueue an analysis job. Give exactly one of --url, --public-id, --key or --file.
--file uploads the image to the configured object store first and enqueues its key.`,
	Args: cobra.NoArgs,
	RunE: runEnqueue,
}

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze <report-id>",
	Short: "Enqueue analysis again from the report's stored photo",
	Args:  cobra.ExactArgs(1),
	RunE:  runReanalyze,
}

func init() {
	rootCmd.AddCommand(statsCmd, deadCmd, getCmd, retryCmd, enqueueCmd, reanalyzeCmd)

	deadCmd.Flags().IntVar(&deadLimit, "limit", 20, "maximum jobs to list (max 100)")

	enqueueCmd.Flags().StringVar(&enqReport, "report", "", "report ID (required)")
	enqueueCmd.Flags().StringVar(&enqURL, "url", "", "public image URL")
	enqueueCmd.Flags().StringVar(&enqPublicID, "public-id", "", "Cloudinary public ID")
	enqueueCmd.Flags().StringVar(&enqKey, "key", "", "object-store key")
	enqueueCmd.Flags().StringVar(&enqBucket, "bucket", "", "object-store bucket (default: server bucket)")
	enqueueCmd.Flags().StringVar(&enqFile, "file", "", "local image to upload before enqueueing")
	enqueueCmd.Flags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "config file with the minio section, for --file")
	enqueueCmd.MarkFlagRequired("report")
	enqueueCmd.MarkFlagsMutuallyExclusive("url", "public-id", "key", "file")
	enqueueCmd.MarkFlagsOneRequired("url", "public-id", "key", "file")
}

func runStats(cmd *cobra.Command, _ []string) error {
	var st jobs.Stats
	if err := call("GET", "/v1/jobs/stats", nil, &st); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if isJSONOutput() {
		return printJSON(out, st)
	}
	table := tablewriter.NewWriter(out)
	table.Header("Queued", "Delayed", "Active", "Dead")
	table.Append(
		fmt.Sprintf("%d", st.Queued),
		fmt.Sprintf("%d", st.Delayed),
		fmt.Sprintf("%d", st.Active),
		deadCount(st.Dead),
	)
	return table.Render()
}

func deadCount(n int) string {
	if n == 0 {
		return "0"
	}
	return color.New(color.FgRed).Sprintf("%d", n)
}

func runDead(cmd *cobra.Command, _ []string) error {
	var list []jobs.Job
	q := url.Values{"limit": {fmt.Sprintf("%d", deadLimit)}}
	if err := call("GET", "/v1/jobs/dead?"+q.Encode(), nil, &list); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if isJSONOutput() {
		return printJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, color.New(color.FgGreen).Sprint("no dead jobs"))
		return nil
	}
	table := tablewriter.NewWriter(out)
	table.Header("Job ID", "Report", "Storage", "Attempts", "Last Error", "Updated")
	for _, j := range list {
		table.Append(
			string(j.ID),
			j.Payload.ReportID,
			j.Payload.Storage,
			fmt.Sprintf("%d/%d", j.Attempt, j.MaxAttempts),
			truncate(j.LastError, 60),
			j.UpdatedAt.Format(time.RFC3339),
		)
	}
	return table.Render()
}

func runGet(cmd *cobra.Command, args []string) error {
	var j jobs.Job
	if err := call("GET", "/v1/jobs/"+url.PathEscape(args[0]), nil, &j); err != nil {
		return err
	}
	return printJob(cmd.OutOrStdout(), &j)
}

func runRetry(cmd *cobra.Command, args []string) error {
	if err := call("POST", "/v1/jobs/"+url.PathEscape(args[0])+"/retry", nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s job %s requeued\n", color.New(color.FgGreen).Sprint("✓"), args[0])
	return nil
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	p := jobs.Payload{ReportID: enqReport}
	switch {
	case enqURL != "":
		p.Storage, p.URL = jobs.StoragePublic, enqURL
	case enqPublicID != "":
		p.Storage, p.PublicID = jobs.StorageCloudinary, enqPublicID
	case enqKey != "":
		p.Storage, p.Key, p.Bucket = jobs.StorageS3, enqKey, enqBucket
	case enqFile != "":
		bucket, key, err := upload(cmd.Context(), enqFile, enqReport)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "uploaded %s to %s/%s\n", enqFile, bucket, key)
		p.Storage, p.Key, p.Bucket = jobs.StorageS3, key, bucket
	}
	var j jobs.Job
	if err := call("POST", "/v1/jobs", p, &j); err != nil {
		return err
	}
	return printJob(cmd.OutOrStdout(), &j)
}

// upload puts file into the configured bucket under uploads/<report>/.
func upload(ctx context.Context, file, reportID string) (string, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", "", err
	}
	if !cfg.MinioEnabled() {
		return "", "", fmt.Errorf("--file needs minio.endpoint and minio.bucketName in %s", configPath)
	}
	f, err := os.Open(file)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", "", err
	}
	store, err := storage.New(ctx, cfg.Minio.Endpoint, cfg.Minio.Region, cfg.Minio.BucketName,
		cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
	if err != nil {
		return "", "", err
	}
	key := path.Join("uploads", reportID, filepath.Base(file))
	bucket, err := store.Upload(ctx, f, fi.Size(), key)
	return bucket, key, err
}

func runReanalyze(cmd *cobra.Command, args []string) error {
	var j jobs.Job
	if err := call("POST", "/v1/reports/"+url.PathEscape(args[0])+"/analysis", nil, &j); err != nil {
		return err
	}
	return printJob(cmd.OutOrStdout(), &j)
}

func printJob(out io.Writer, j *jobs.Job) error {
	if isJSONOutput() {
		return printJSON(out, j)
	}
	table := tablewriter.NewWriter(out)
	table.Header("Field", "Value")
	table.Append("Job ID", string(j.ID))
	table.Append("Report", j.Payload.ReportID)
	table.Append("Storage", j.Payload.Storage)
	table.Append("State", stateColor(j.State))
	table.Append("Attempts", fmt.Sprintf("%d/%d", j.Attempt, j.MaxAttempts))
	if j.LastError != "" {
		table.Append("Last Error", j.LastError)
	}
	table.Append("Visible At", j.VisibleAt.Format(time.RFC3339))
	table.Append("Created At", j.CreatedAt.Format(time.RFC3339))
	return table.Render()
}

func stateColor(s jobs.State) string {
	switch s {
	case jobs.StateDead:
		return color.New(color.FgRed).Sprint(s)
	case jobs.StateActive:
		return color.New(color.FgYellow).Sprint(s)
	}
	return color.New(color.FgGreen).Sprint(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
