/***************************************************************
 *
 * Copyright (C) 2025, Skyhook Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eodiscover/skyhook/auth"
	"github.com/eodiscover/skyhook/catalog"
	"github.com/eodiscover/skyhook/config"
	"github.com/eodiscover/skyhook/transfer"
)

var downloadCmd = &cobra.Command{
	Use:   "download {product-name ...}",
	Short: "Download products by name",
	Long: `Download one or more products by their catalog names.  Products whose
account entitlements allow it are fetched straight from the object store;
everything else streams through the catalog's download endpoint.  Products
already present on disk are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: downloadMain,
}

func init() {
	flagSet := downloadCmd.Flags()
	flagSet.StringP("output", "o", ".", "Directory to download products into")
	flagSet.IntP("workers", "w", 0, "Concurrent product transfers (0 uses the configured default)")
	flagSet.IntP("retries", "r", 0, "Transfer attempts per product (0 uses the configured default)")
	flagSet.Bool("validate", false, "Verify the completion marker after each transfer")
	flagSet.Bool("bulk", false, "Use the external bulk-copy utility for direct transfers")
	flagSet.Bool("no-progress", false, "Disable progress bars")

	rootCmd.AddCommand(downloadCmd)
}

func downloadMain(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if noProgress, _ := cmd.Flags().GetBool("no-progress"); noProgress {
		viper.Set("Transfer.DisableProgressBars", true)
	}
	if useBulk, _ := cmd.Flags().GetBool("bulk"); useBulk {
		viper.Set("BulkCopy.Enabled", true)
	}

	outputDir, _ := cmd.Flags().GetString("output")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.Wrapf(err, "cannot create output directory %s", outputDir)
	}

	username, password, err := config.GetCredentials()
	if err != nil {
		return err
	}
	creds, err := auth.NewCredentialSet(username, password)
	if err != nil {
		return err
	}

	records, err := resolveRecords(ctx, args)
	if err != nil {
		return err
	}

	options := []transfer.Option{transfer.WithOutputDir(outputDir)}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		options = append(options, transfer.WithWorkers(workers))
	}
	if retries, _ := cmd.Flags().GetInt("retries"); retries > 0 {
		options = append(options, transfer.WithRetryCeiling(retries))
	}
	if validate, _ := cmd.Flags().GetBool("validate"); validate {
		options = append(options, transfer.WithValidation(true))
	}

	orch := transfer.NewOrchestrator(creds, options...)
	summary, err := orch.DownloadBatch(ctx, records)
	if err != nil {
		return err
	}

	printSummary(summary)
	if summary.Failed > 0 {
		return errors.Errorf("%d of %d product(s) failed to download", summary.Failed, len(summary.Details))
	}
	return nil
}

// resolveRecords looks every requested name up in the catalog.  Names that
// resolve to nothing still produce a task so the failure is visible in the
// batch summary instead of silently shrinking the batch.
func resolveRecords(ctx context.Context, names []string) ([]catalog.ProductRecord, error) {
	exec := catalog.NewExecutor()
	records := make([]catalog.ProductRecord, 0, len(names))
	for _, name := range names {
		result, err := exec.QueryByName(ctx, name)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to look up product %s", name)
		}
		if len(result.Records) == 0 {
			log.Warnf("Product %s not found in the catalog", name)
			records = append(records, catalog.ProductRecord{Name: name})
			continue
		}
		records = append(records, result.Records[0])
	}
	return records, nil
}

func printSummary(summary *transfer.Summary) {
	fmt.Printf("Downloads: %d succeeded, %d failed, %d skipped\n",
		summary.Succeeded, summary.Failed, summary.Skipped)
	for _, detail := range summary.Details {
		switch detail.Outcome {
		case transfer.OutcomeFailed:
			fmt.Printf("  FAILED  %s (%s path, %d attempt(s)): %s\n",
				detail.ProductName, detail.Path, detail.Attempts, detail.Error)
			for _, key := range detail.FailedKeys {
				fmt.Printf("          missing object: %s\n", key)
			}
		case transfer.OutcomeSkipped:
			fmt.Printf("  skipped %s: %s\n", detail.ProductName, detail.Note)
		}
	}
}
