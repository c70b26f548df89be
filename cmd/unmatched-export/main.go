// unmatched-export writes the unmatched payment queue to an xlsx workbook for
// manual reconciliation, optionally uploading it to GCS_BUCKET and printing a
// signed download link.
//
// Usage (from backend directory):
//
//	DB_*=... go run ./cmd/unmatched-export -out unmatched.xlsx [-landlord <id>] [-since 2024-01-01T00:00:00Z] [-upload]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/models/reports"
	"github.com/mmdatafocus/rentals_backend/utils"
)

func main() {
	out := flag.String("out", "unmatched.xlsx", "output file")
	landlord := flag.String("landlord", "", "only this landlord's notifications")
	since := flag.String("since", "", "RFC3339 lower bound on received time")
	limit := flag.Int("limit", 500, "maximum rows")
	upload := flag.Bool("upload", false, "also upload to GCS_BUCKET")
	linkTTL := flag.Duration("link-ttl", 24*time.Hour, "lifetime of the signed download link printed after upload")
	flag.Parse()

	filter := models.UnmatchedFilter{LandlordID: *landlord, Limit: *limit}
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -since: %v\n", err)
			os.Exit(2)
		}
		filter.Since = &t
	}

	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()
	ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)

	rows, err := models.NewPaymentStore(config.GetDB()).ListUnmatchedNotifications(ctx, filter)
	if err != nil {
		config.LogError(logger, "unmatched-export", "main", "ListUnmatchedNotifications", filter, err)
		os.Exit(1)
	}

	data, err := reports.BuildUnmatchedWorkbook(reports.NewUnmatchedNotificationRows(rows))
	if err != nil {
		config.LogError(logger, "unmatched-export", "main", "BuildUnmatchedWorkbook", nil, err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d rows to %s\n", len(rows), *out)

	if *upload {
		object := fmt.Sprintf("reconciliation/unmatched-%s.xlsx", time.Now().UTC().Format("20060102T150405Z"))
		uri, err := utils.UploadReportToGCS(ctx, object, utils.XlsxContentType, data)
		if err != nil {
			config.LogError(logger, "unmatched-export", "main", "UploadReportToGCS", object, err)
			os.Exit(1)
		}
		fmt.Printf("uploaded %s\n", uri)

		link, err := utils.SignReportDownload(ctx, object, *linkTTL)
		if err != nil {
			// The object is uploaded; only the convenience link failed.
			config.LogError(logger, "unmatched-export", "main", "SignReportDownload", object, err)
			return
		}
		fmt.Printf("download (expires in %s): %s\n", *linkTTL, link)
	}
}
