package example

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/domain"
)

// Example download parameters.
const (
	ExampleRowCount     = 4
	DownloadFilename    = "example-text-file.txt"
	DownloadMimetype    = "text/plain"
	DownloadDescription = "example_download_task"
)

// DownloadArgs are the arguments of the example download job.
type DownloadArgs struct {
	Rows int `json:"how_many_rows"`
}

// DownloadSetup fixes the row count of every example download.
func DownloadSetup(*http.Request) (any, error) {
	return DownloadArgs{Rows: ExampleRowCount}, nil
}

// FileContent returns rows copies of the example line, which names the row
// count.
func FileContent(rows int) string {
	row := fmt.Sprintf("This file just contains this same line %d times.\n", rows)
	return strings.Repeat(row, rows)
}

// DownloadProducer builds the example text file. A positive delay makes it
// wait before producing.
func DownloadProducer(delay time.Duration) asyncop.Producer {
	return asyncop.ProducerFunc(func(ctx context.Context, raw json.RawMessage) (*domain.File, error) {
		var args DownloadArgs
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("%w: download arguments: %v", domain.ErrValidation, err)
			}
		}
		if args.Rows < 0 {
			return nil, fmt.Errorf("%w: row count cannot be negative", domain.ErrValidation)
		}

		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
		return &domain.File{
			Content:  []byte(FileContent(args.Rows)),
			Filename: DownloadFilename,
			Mimetype: DownloadMimetype,
		}, nil
	})
}
