package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-mailmerge/internal/job"
	"github.com/benjaminschreck/go-mailmerge/internal/sheet"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Merge local files without starting the server",
	Long: `Merge a range of spreadsheet rows into one or more templates and write
the result to a local directory. The same validation and naming rules as the
web server apply.`,
	Example: `  mailmerge run --excel people.xlsx --template offer.docx --start 4 --end 20
  mailmerge run --excel people.xlsx --template a.docx --template b.docx --start 4 --end 4 --mode separate --out ./out`,
	Args: cobra.NoArgs,
	RunE: runMerge,
}

var (
	runExcel     string
	runTemplates []string
	runStart     int
	runEnd       int
	runMode      string
	runOut       string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runExcel, "excel", "", "Spreadsheet (.xlsx) holding the records")
	runCmd.Flags().StringArrayVar(&runTemplates, "template", nil, "Word template (.docx), repeatable")
	runCmd.Flags().IntVar(&runStart, "start", 0, "First spreadsheet row to merge")
	runCmd.Flags().IntVar(&runEnd, "end", 0, "Last spreadsheet row to merge")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Output mode: combined or separate (default from MERGE_MODE)")
	runCmd.Flags().StringVar(&runOut, "out", ".", "Directory the result is written to")
	_ = runCmd.MarkFlagRequired("excel")
	_ = runCmd.MarkFlagRequired("template")
	_ = runCmd.MarkFlagRequired("start")
	_ = runCmd.MarkFlagRequired("end")
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	sh, err := sheet.ReadFile(runExcel, sheet.Options{Sheet: a.cfg.Merge.Sheet, HeaderRow: a.cfg.Merge.HeaderRow})
	if err != nil {
		return err
	}

	req := job.Request{
		Sheet:  sh,
		Window: sheet.Window{Start: runStart, End: runEnd},
		Mode:   job.Mode(runMode),
	}
	for _, path := range runTemplates {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		req.Templates = append(req.Templates, job.Template{Name: filepath.Base(path), Data: data})
	}

	submitted, err := a.driver.Submit(ctx, req)
	if err != nil {
		return err
	}
	a.driver.Wait()

	j, err := a.driver.Get(ctx, submitted.ID)
	if err != nil {
		return err
	}
	if j.Status != job.StatusSucceeded {
		return fmt.Errorf("merge failed: %s", j.Message)
	}

	dst := filepath.Join(runOut, j.ResultName)
	if err := copyFile(j.ResultPath, dst); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", dst, j.Message)

	// The workspace is only needed until the result is copied out.
	_ = os.RemoveAll(j.WorkDir)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
